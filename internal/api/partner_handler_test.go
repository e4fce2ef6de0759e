package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testFeed = `
shop: Связной
categories:
  - id: 224
    name: Смартфоны
goods:
  - id: 4216292
    category: 224
    model: apple/iphone-xs-max
    name: Смартфон Apple iPhone XS Max 512GB
    price: 110000.00
    price_rrc: 116990.00
    quantity: 14
  - id: 4216313
    category: 224
    model: apple/iphone-xr
    name: Смартфон Apple iPhone XR 256GB
    price: 65000.00
    price_rrc: 69990.00
    quantity: 9
`

func postFeed(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/partner/feed", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-yaml")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestImportFeed(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postFeed(t, router, testFeed)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	data := decodeData(t, w)
	if data["shop_name"] != "Связной" {
		t.Errorf("expected shop name from feed, got %v", data["shop_name"])
	}
	if data["products_loaded"].(float64) != 2 {
		t.Errorf("expected 2 products loaded, got %v", data["products_loaded"])
	}

	shopID := data["shop_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/"+shopID+"/products", nil)
	list := httptest.NewRecorder()
	router.ServeHTTP(list, req)
	if list.Code != http.StatusOK {
		t.Fatalf("list products: expected 200, got %d: %s", list.Code, list.Body.String())
	}

	var resp struct {
		Data []productInfoView `json:"data"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 products, got %d", len(resp.Data))
	}
	for _, p := range resp.Data {
		if p.ExternalID == 4216292 && p.PriceMinor != 11000000 {
			t.Errorf("expected price in minor units 11000000, got %d", p.PriceMinor)
		}
	}
}

func TestImportFeedReplacesPreviousPrice(t *testing.T) {
	router, _ := newTestRouter(t)

	if w := postFeed(t, router, testFeed); w.Code != http.StatusOK {
		t.Fatalf("first import failed: %d %s", w.Code, w.Body.String())
	}

	reduced := `
shop: Связной
categories:
  - id: 224
    name: Смартфоны
goods:
  - id: 4216292
    category: 224
    model: apple/iphone-xs-max
    name: Смартфон Apple iPhone XS Max 512GB
    price: 99990.00
    price_rrc: 105000.00
    quantity: 3
`
	w := postFeed(t, router, reduced)
	if w.Code != http.StatusOK {
		t.Fatalf("second import failed: %d %s", w.Code, w.Body.String())
	}

	data := decodeData(t, w)
	shopID := data["shop_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/"+shopID+"/products", nil)
	list := httptest.NewRecorder()
	router.ServeHTTP(list, req)

	var resp struct {
		Data []productInfoView `json:"data"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("reimport must replace the price list, got %d products", len(resp.Data))
	}
	if resp.Data[0].Quantity != 3 {
		t.Errorf("expected quantity 3 after reimport, got %d", resp.Data[0].Quantity)
	}
}

func TestImportFeedRejectsInvalid(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := map[string]string{
		"missing shop": `
categories: []
goods: []
`,
		"negative quantity": `
shop: Test
goods:
  - id: 1
    name: Item
    price: 10.00
    price_rrc: 12.00
    quantity: -5
`,
		"malformed yaml": `:::`,
	}

	for name, feed := range cases {
		t.Run(name, func(t *testing.T) {
			w := postFeed(t, router, feed)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}
