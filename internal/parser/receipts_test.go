package parser

import (
	"testing"
	"time"

	"fintrack/internal/models"

	"github.com/shopspring/decimal"
)

func item(receipt, name, cat, price string, day int, month time.Month) models.MarketItem {
	return models.MarketItem{
		ID:        receipt + name,
		ReceiptID: receipt,
		Name:      name,
		Category:  cat,
		Price:     decimal.RequireFromString(price),
		Date:      time.Date(2024, month, day, 0, 0, 0, 0, time.UTC),
		Merchant:  "Mercado " + receipt,
	}
}

func TestGroupReceipts(t *testing.T) {
	items := []models.MarketItem{
		item("r1", "Arroz", "Mercearia", "25.00", 3, time.April),
		item("r1", "Feijão", "Mercearia", "9.50", 3, time.April),
		item("r2", "Cerveja", "Bebida", "30.00", 12, time.April),
		item("", "Sabão", "Limpeza", "7.00", 1, time.April),
		item("r3", "Leite", "Laticínios", "5.00", 2, time.March),
	}

	groups := GroupReceipts(items, 2024, time.April, "")
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0].ReceiptID != "r2" || groups[2].ReceiptID != LegacyReceiptID {
		t.Errorf("order = %s,%s,%s", groups[0].ReceiptID, groups[1].ReceiptID, groups[2].ReceiptID)
	}
	if !groups[1].Total.Equal(decimal.RequireFromString("34.5")) {
		t.Errorf("r1 total = %s", groups[1].Total)
	}

	all := GroupReceipts(items, 0, 0, "")
	if len(all) != 4 {
		t.Errorf("unfiltered groups = %d, want 4", len(all))
	}
}

func TestGroupReceipts_Search(t *testing.T) {
	items := []models.MarketItem{
		item("r1", "Arroz", "Mercearia", "25.00", 3, time.April),
		item("r1", "Feijão", "Mercearia", "9.50", 3, time.April),
		item("r2", "Cerveja", "Bebida", "30.00", 12, time.April),
	}
	groups := GroupReceipts(items, 2024, time.April, "ARROZ")
	if len(groups) != 1 || len(groups[0].Items) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
	if !groups[0].Total.Equal(decimal.RequireFromString("34.5")) {
		t.Errorf("total = %s, want whole receipt", groups[0].Total)
	}

	groups = GroupReceipts(items, 2024, time.April, "bebida")
	if len(groups) != 1 || groups[0].ReceiptID != "r2" {
		t.Errorf("category search = %+v", groups)
	}
}
