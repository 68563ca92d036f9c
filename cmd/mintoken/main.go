// cmd/mintoken/main.go: signs an access token for local testing.
// Usage: go run ./cmd/mintoken -employee E42 -role supervisor
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/config"
	"github.com/PnGunchai/MAinventory-sub000/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	employee := flag.String("employee", "E1", "employee id stamped on movements")
	role := flag.String("role", middleware.RoleStaff, "staff | supervisor | admin")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	now := time.Now()
	claims := middleware.JWTClaims{
		EmployeeID: *employee,
		Username:   *employee,
		Role:       *role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *employee,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(signed)
}
