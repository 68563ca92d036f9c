// cmd/seedcatalog/main.go: creates the demo catalog entries (idempotent).
// Usage: go run ./cmd/seedcatalog
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/config"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/infra"
	"github.com/PnGunchai/MAinventory-sub000/internal/router"
	"github.com/PnGunchai/MAinventory-sub000/internal/service"
)

var demo = []dto.CreateProductRequest{
	{BoxBarcode: "BOX1", Name: "Cable ties (bulk)", SerialCount: 0},
	{BoxBarcode: "BOXS", Name: "Handheld scanner", SerialCount: 1},
	{BoxBarcode: "BOXP", Name: "Wireless earbuds (pair)", SerialCount: 2},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	engine := service.NewEngine(router.NewRepos(db), service.NewClaimGuard(nil, 0, nil), service.NewClock(loc), nil)
	catalog := service.NewCatalogService(engine, nil)

	ctx := context.Background()
	for _, req := range demo {
		_, err := catalog.Create(ctx, req)
		switch {
		case err == nil:
			fmt.Printf("created %s (%s)\n", req.BoxBarcode, req.Name)
		case apierror.IsKind(err, apierror.KindInvalidInput):
			fmt.Printf("skipped %s: %v\n", req.BoxBarcode, err)
		default:
			log.Fatalf("create %s: %v", req.BoxBarcode, err)
		}
	}
}
