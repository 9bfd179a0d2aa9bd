package backend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shelfsense/shelfd/internal/inventory"
)

// envelope mirrors the JSON wrapper every endpoint answers with.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details []string        `json:"details"`
	Count   *int            `json:"count"`
}

var _ = Describe("API", func() {
	var (
		stack  *testStack
		router http.Handler
	)

	BeforeEach(func() {
		stack = newTestStack()
		router = stack.api().Router()
	})

	do := func(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env envelope
		if rec.Body.Len() > 0 {
			Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		}
		return rec, env
	}

	doRaw := func(method, path, body string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env envelope
		if rec.Body.Len() > 0 {
			Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		}
		return rec, env
	}

	Describe("device endpoints", func() {
		It("should accept a health ping", func() {
			rec, env := doRaw(http.MethodPost, "/health", `{"device":"scale-1"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())
			Expect(env.Message).To(Equal("ok"))
		})

		It("should describe the ingest endpoint", func() {
			rec, env := do(http.MethodGet, "/arduino/info", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var info map[string]any
			Expect(json.Unmarshal(env.Data, &info)).To(Succeed())
			Expect(info["endpoint"]).To(Equal("/arduino/weight-movement"))
		})

		It("should report device-facing status", func() {
			rec, env := do(http.MethodGet, "/arduino/status", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var status map[string]any
			Expect(json.Unmarshal(env.Data, &status)).To(Succeed())
			Expect(status["status"]).To(Equal("online"))
		})
	})

	Describe("POST /arduino/weight-movement", func() {
		It("should record a single movement and auto-create its product", func() {
			rec, env := doRaw(http.MethodPost, "/arduino/weight-movement",
				`{"nome":"cerveja","peso":335.1,"acao":"RETIRADO","ts":214022}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(env.Success).To(BeTrue())

			var result inventory.BatchResult
			Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
			Expect(result.Recorded).To(HaveLen(1))
			Expect(result.Errors).To(BeEmpty())

			product, err := stack.catalog.GetByName(context.Background(), "cerveja")
			Expect(err).NotTo(HaveOccurred())
			Expect(product.Weight).To(Equal(335.1))
		})

		It("should record a batch movement", func() {
			rec, env := doRaw(http.MethodPost, "/arduino/weight-movement",
				`{"acao":"COLOCADOS","quantidade":2,"produtos":[{"nome":"cerveja","peso":350.5,"id":0},{"nome":"agua","peso":510,"id":1}],"ts":214022}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var result inventory.BatchResult
			Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
			Expect(result.Recorded).To(HaveLen(2))
		})

		It("should answer 200 with per-item errors for a partial batch", func() {
			rec, env := doRaw(http.MethodPost, "/arduino/weight-movement",
				`{"acao":"COLOCADOS","quantidade":2,"produtos":[{"nome":"cerveja","peso":350.5,"id":0},{"nome":"a","peso":100,"id":1}],"ts":214022}`)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var result inventory.BatchResult
			Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
			Expect(result.Recorded).To(HaveLen(1))
			Expect(result.Errors).To(HaveLen(1))
			Expect(result.Errors[0].Index).To(Equal(1))
		})

		It("should reject an unrecognized payload shape", func() {
			rec, env := doRaw(http.MethodPost, "/arduino/weight-movement", `{"foo":"bar"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Success).To(BeFalse())
			Expect(env.Error).To(ContainSubstring("unrecognized payload format"))
		})

		It("should list every violation of an invalid payload", func() {
			rec, env := doRaw(http.MethodPost, "/arduino/weight-movement",
				`{"nome":"","peso":-1,"acao":"EMPRESTADO","ts":-5}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Error).To(Equal("validation failed"))
			Expect(env.Details).To(HaveLen(4))
		})
	})

	Describe("/products", func() {
		It("should create and fetch a product", func() {
			rec, env := do(http.MethodPost, "/products", map[string]any{"name": "cerveja", "weight": 350.5})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var product inventory.Product
			Expect(json.Unmarshal(env.Data, &product)).To(Succeed())
			Expect(product.ID).NotTo(BeZero())

			rec, env = do(http.MethodGet, fmt.Sprintf("/products/%d", product.ID), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &product)).To(Succeed())
			Expect(product.Name).To(Equal("cerveja"))
		})

		It("should report struct validation failures with field details", func() {
			rec, env := do(http.MethodPost, "/products", map[string]any{"name": "cerveja"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Details).To(ContainElement(ContainSubstring("Weight")))
		})

		It("should answer 409 for a duplicate name", func() {
			rec, _ := do(http.MethodPost, "/products", map[string]any{"name": "cerveja", "weight": 350.5})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec, env := do(http.MethodPost, "/products", map[string]any{"name": "CERVEJA", "weight": 350.5})
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(env.Error).To(ContainSubstring("already exists"))
		})

		It("should list products with a count", func() {
			do(http.MethodPost, "/products", map[string]any{"name": "cerveja", "weight": 350.5})
			do(http.MethodPost, "/products", map[string]any{"name": "agua", "weight": 510.0})

			rec, env := do(http.MethodGet, "/products", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(env.Count).NotTo(BeNil())
			Expect(*env.Count).To(Equal(2))
		})

		It("should search by name case-insensitively", func() {
			do(http.MethodPost, "/products", map[string]any{"name": "cerveja", "weight": 350.5})

			rec, env := do(http.MethodGet, "/products/search/CERVEJA", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var product inventory.Product
			Expect(json.Unmarshal(env.Data, &product)).To(Succeed())
			Expect(product.Name).To(Equal("cerveja"))
		})

		It("should update and delete a product", func() {
			_, env := do(http.MethodPost, "/products", map[string]any{"name": "cerveja", "weight": 350.5})
			var product inventory.Product
			Expect(json.Unmarshal(env.Data, &product)).To(Succeed())

			rec, env := do(http.MethodPut, fmt.Sprintf("/products/%d", product.ID), map[string]any{"weight": 473.0})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &product)).To(Succeed())
			Expect(product.Weight).To(Equal(473.0))

			rec, _ = do(http.MethodDelete, fmt.Sprintf("/products/%d", product.ID), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec, _ = do(http.MethodGet, fmt.Sprintf("/products/%d", product.ID), nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should answer 404 for an unknown product", func() {
			rec, _ := do(http.MethodGet, "/products/999", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should reject a non-numeric product ID", func() {
			rec, _ := do(http.MethodGet, "/products/abc", nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("/weight", func() {
		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				rec, _ := doRaw(http.MethodPost, "/arduino/weight-movement",
					fmt.Sprintf(`{"nome":"cerveja","peso":350.5,"acao":"COLOCADO","ts":%d}`, 214022+i))
				Expect(rec.Code).To(Equal(http.StatusCreated))
			}
		})

		It("should list readings", func() {
			rec, env := do(http.MethodGet, "/weight/readings", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(env.Count).NotTo(BeNil())
			Expect(*env.Count).To(Equal(3))
		})

		It("should load one reading by ID", func() {
			rec, env := do(http.MethodGet, "/weight/readings/1", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var reading inventory.WeightReading
			Expect(json.Unmarshal(env.Data, &reading)).To(Succeed())
			Expect(reading.ProductName).To(Equal("cerveja"))
		})

		It("should answer 404 for an unknown reading", func() {
			rec, _ := do(http.MethodGet, "/weight/readings/99", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should list the latest readings of one product", func() {
			rec, env := do(http.MethodGet, "/weight/readings/latest/cerveja?limit=2", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(*env.Count).To(Equal(2))
		})

		It("should reject a malformed start timestamp", func() {
			rec, _ := do(http.MethodGet, "/weight/readings?start=yesterday", nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should trim history on cleanup", func() {
			rec, env := do(http.MethodDelete, "/weight/readings/cleanup?keep=1", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var result map[string]any
			Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
			Expect(result["removed"]).To(BeNumerically("==", 2))

			_, env = do(http.MethodGet, "/weight/readings", nil)
			Expect(*env.Count).To(Equal(1))
		})
	})

	Describe("/shelfs", func() {
		var productID uint

		BeforeEach(func() {
			_, env := do(http.MethodPost, "/products", map[string]any{"name": "cerveja", "weight": 350.5})
			var product inventory.Product
			Expect(json.Unmarshal(env.Data, &product)).To(Succeed())
			productID = product.ID
		})

		It("should create a shelf seeded with items", func() {
			rec, env := do(http.MethodPost, "/shelfs", map[string]any{
				"name":     "geladeira 1",
				"location": "cozinha",
				"items":    []map[string]any{{"productId": productID, "quantity": 3}},
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var shelf inventory.Shelf
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())
			Expect(shelf.Items).To(HaveLen(1))
			Expect(shelf.TotalWeight).To(BeNumerically("~", 3*350.5, 1e-9))
		})

		It("should answer 409 for a duplicate shelf name", func() {
			rec, _ := do(http.MethodPost, "/shelfs", map[string]any{"name": "geladeira 1"})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec, _ = do(http.MethodPost, "/shelfs", map[string]any{"name": "GELADEIRA 1"})
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("should manage shelf items over HTTP", func() {
			_, env := do(http.MethodPost, "/shelfs", map[string]any{"name": "geladeira 1"})
			var shelf inventory.Shelf
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())

			rec, env := do(http.MethodPost, "/shelfs/"+shelf.ID+"/products",
				map[string]any{"productId": productID, "quantity": 2})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())
			Expect(shelf.Items[0].Quantity).To(Equal(2))

			rec, env = do(http.MethodPut, fmt.Sprintf("/shelfs/%s/products/%d", shelf.ID, productID),
				map[string]any{"quantity": 5})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())
			Expect(shelf.Items[0].Quantity).To(Equal(5))

			rec, env = do(http.MethodDelete, fmt.Sprintf("/shelfs/%s/products/%d", shelf.ID, productID), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())
			Expect(shelf.Items).To(BeEmpty())
			Expect(shelf.TotalWeight).To(BeZero())
		})

		It("should report a consistent shelf", func() {
			_, env := do(http.MethodPost, "/shelfs", map[string]any{
				"name":  "geladeira 1",
				"items": []map[string]any{{"productId": productID, "quantity": 2}},
			})
			var shelf inventory.Shelf
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())

			rec, env := do(http.MethodGet, "/shelfs/"+shelf.ID+"/consistency", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var report inventory.AuditReport
			Expect(json.Unmarshal(env.Data, &report)).To(Succeed())
			Expect(report.WeightConsistent).To(BeTrue())
			Expect(report.ItemCountConsistent).To(BeTrue())
		})

		It("should search shelves by name", func() {
			do(http.MethodPost, "/shelfs", map[string]any{"name": "geladeira 1"})
			do(http.MethodPost, "/shelfs", map[string]any{"name": "despensa"})

			rec, env := do(http.MethodGet, "/shelfs/search?name=gela", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(*env.Count).To(Equal(1))
		})

		It("should aggregate shelf statistics", func() {
			do(http.MethodPost, "/shelfs", map[string]any{
				"name":  "geladeira 1",
				"items": []map[string]any{{"productId": productID, "quantity": 2}},
			})

			rec, env := do(http.MethodGet, "/shelfs/statistics", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var stats inventory.ShelfStatistics
			Expect(json.Unmarshal(env.Data, &stats)).To(Succeed())
			Expect(stats.TotalShelves).To(Equal(1))
			Expect(stats.TotalItems).To(Equal(2))
		})

		It("should update and delete a shelf", func() {
			_, env := do(http.MethodPost, "/shelfs", map[string]any{"name": "geladeira 1"})
			var shelf inventory.Shelf
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())

			rec, env := do(http.MethodPut, "/shelfs/"+shelf.ID, map[string]any{"isActive": false})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &shelf)).To(Succeed())
			Expect(shelf.IsActive).To(BeFalse())

			rec, _ = do(http.MethodDelete, "/shelfs/"+shelf.ID, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec, _ = do(http.MethodGet, "/shelfs/"+shelf.ID, nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	It("should expose prometheus metrics", func() {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})
