package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"fintrack/internal/chat"
	"fintrack/internal/config"
	"fintrack/internal/database"
	"fintrack/internal/models"
	"fintrack/internal/parser"
	"fintrack/internal/session"
	"fintrack/internal/store"
	"fintrack/internal/task"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type testEnv struct {
	r   *gin.Engine
	cfg *config.Config
	db  *gorm.DB
}

func setup(t *testing.T, deps Deps) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: gin.TestMode},
		JWT:      config.JWTConfig{Secret: testSecret, Issuer: "fintrack", ExpireHours: 1},
		Security: config.SecurityConfig{EncryptionKey: "test-key"},
		Local:    config.LocalConfig{Dir: filepath.Join(dir, "local")},
		Backup:   config.BackupConfig{Dir: filepath.Join(dir, "backups")},
		Chat:     config.ChatConfig{TransactionWindow: 100, MarketWindow: 50},
	}
	db, err := database.Init(config.DatabaseConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sessions := session.NewManager(store.Backends{DB: db, Hub: store.NewHub(), LocalDir: cfg.Local.Dir}, session.Defaults{}, 0)
	deps.Sessions = sessions
	if deps.Tasks == nil {
		deps.Tasks = task.NewManager()
	}
	tasks := deps.Tasks
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tasks.Shutdown(ctx)
		sessions.Shutdown()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testEnv{r: SetupRouter(cfg, db, deps), cfg: cfg, db: db}
}

type envelope struct {
	Code    int                        `json:"code"`
	Message string                     `json:"message"`
	Data    map[string]json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var r io.Reader
	ct := ""
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
		ct = "text/csv"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
		ct = "application/json"
	}
	req := httptest.NewRequest(method, path, r)
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	return e.send(t, req, token)
}

func (e *testEnv) send(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL.Path, w.Body.String(), err)
		}
	}
	return w, env
}

func field[T any](t *testing.T, env envelope, key string) T {
	t.Helper()
	var v T
	raw, ok := env.Data[key]
	if !ok {
		t.Fatalf("response has no %q: %+v", key, env)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %q: %v", key, err)
	}
	return v
}

func (e *testEnv) guest(t *testing.T) string {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/api/session/guest", "", map[string]string{"name": "Ana"})
	if w.Code != http.StatusOK {
		t.Fatalf("guest: status %d body %s", w.Code, w.Body.String())
	}
	return field[string](t, env, "token")
}

func cloudToken(t *testing.T, userID, sessionID string) string {
	t.Helper()
	token, err := util.GenerateToken(testSecret, "fintrack", models.User{ID: userID, Name: "Bia", Email: "bia@example.com"}, sessionID, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func TestGuestSessionFlow(t *testing.T) {
	e := setup(t, Deps{})

	if w, _ := e.do(t, http.MethodGet, "/api/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", w.Code)
	}

	token := e.guest(t)
	w, env := e.do(t, http.MethodGet, "/api/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: status %d body %s", w.Code, w.Body.String())
	}
	user := field[models.User](t, env, "user")
	if !user.IsGuest || user.Name != "Ana" || !strings.HasPrefix(user.ID, "guest-") {
		t.Errorf("user = %+v", user)
	}
	if mode := field[string](t, env, "mode"); mode != string(store.ModeGuest) {
		t.Errorf("mode = %q", mode)
	}
	settings := field[models.Settings](t, env, "settings")
	if len(settings.ExpenseCategories) != len(models.DefaultExpenseCategories()) {
		t.Errorf("expense categories = %v", settings.ExpenseCategories)
	}

	if w, _ := e.do(t, http.MethodPost, "/api/profile", token, map[string]string{"name": "X"}); w.Code != http.StatusBadRequest {
		t.Errorf("guest profile edit: status %d", w.Code)
	}

	if w, _ := e.do(t, http.MethodPost, "/api/session/logout", token, nil); w.Code != http.StatusOK {
		t.Fatalf("logout: status %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodGet, "/api/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("after logout: status %d", w.Code)
	}
}

func TestTransactionsCRUD(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)

	body := map[string]any{
		"description": "Almoço",
		"amount":      "32.90",
		"type":        "expense",
		"category":    "Alimentação",
		"date":        "2024-05-10",
	}
	w, env := e.do(t, http.MethodPost, "/api/transactions", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	created := field[models.Transaction](t, env, "transaction")
	if created.ID == "" || !created.Amount.Equal(decimal.RequireFromString("32.90")) {
		t.Fatalf("created = %+v", created)
	}

	body["amount"] = "0"
	if w, _ := e.do(t, http.MethodPost, "/api/transactions", token, body); w.Code != http.StatusBadRequest {
		t.Errorf("zero amount: status %d", w.Code)
	}

	body["amount"] = "40"
	body["description"] = "Jantar"
	w, _ = e.do(t, http.MethodPut, "/api/transactions/"+created.ID, token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", w.Code, w.Body.String())
	}
	if w, _ := e.do(t, http.MethodPut, "/api/transactions/missing", token, body); w.Code != http.StatusNotFound {
		t.Errorf("update missing: status %d", w.Code)
	}

	_, env = e.do(t, http.MethodGet, "/api/transactions?month=2024-05&type=expense", token, nil)
	items := field[[]models.Transaction](t, env, "items")
	if len(items) != 1 || items[0].Description != "Jantar" {
		t.Fatalf("list = %+v", items)
	}
	_, env = e.do(t, http.MethodGet, "/api/transactions?month=2024-04", token, nil)
	if n := field[int](t, env, "total"); n != 0 {
		t.Errorf("april total = %d", n)
	}
	if w, _ := e.do(t, http.MethodGet, "/api/transactions?month=maio", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad month: status %d", w.Code)
	}

	_, env = e.do(t, http.MethodGet, "/api/stats/monthly?month=2024-05", token, nil)
	formatted := field[map[string]string](t, env, "formatted")
	if formatted["expense"] != "R$ 40,00" || formatted["balance"] != "-R$ 40,00" {
		t.Errorf("formatted = %v", formatted)
	}

	if w, _ := e.do(t, http.MethodDelete, "/api/transactions/"+created.ID, token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	_, env = e.do(t, http.MethodGet, "/api/transactions", token, nil)
	if n := field[int](t, env, "total"); n != 0 {
		t.Errorf("total after delete = %d", n)
	}
}

func TestBatchCommit(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)

	res := parser.Result{
		Candidates: []parser.Candidate{
			{Date: "2024-05-01", Description: "Uber", Category: "Aplicativos", Type: models.Expense, Amount: decimal.NewFromInt(20)},
			{Date: "2024-05-02", Description: "Estorno", Category: "Outros", Type: models.Income, Amount: decimal.Zero},
		},
		NewCategories: []parser.NewCategory{{Type: models.Expense, Name: "Aplicativos"}},
	}
	w, env := e.do(t, http.MethodPost, "/api/transactions/batch", token, res)
	if w.Code != http.StatusOK {
		t.Fatalf("batch: status %d body %s", w.Code, w.Body.String())
	}
	if saved, rejected := field[int](t, env, "saved"), field[int](t, env, "rejected"); saved != 1 || rejected != 1 {
		t.Errorf("saved=%d rejected=%d", saved, rejected)
	}
	_, env = e.do(t, http.MethodGet, "/api/settings", token, nil)
	settings := field[models.Settings](t, env, "settings")
	if !contains(settings.ExpenseCategories, "Aplicativos") {
		t.Errorf("expense categories = %v", settings.ExpenseCategories)
	}
}

func TestSettingsThemeAndCategories(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)

	if w, _ := e.do(t, http.MethodPut, "/api/settings", token, map[string]string{"theme": "neon"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad theme: status %d", w.Code)
	}
	_, env := e.do(t, http.MethodPut, "/api/settings", token, map[string]string{"theme": "dark"})
	if s := field[models.Settings](t, env, "settings"); s.Theme == nil || *s.Theme != models.ThemeDark {
		t.Errorf("theme = %v", s.Theme)
	}

	_, env = e.do(t, http.MethodPost, "/api/categories", token, map[string]string{"type": "expense", "name": "Pets"})
	if !field[bool](t, env, "added") {
		t.Error("Pets not added")
	}
	_, env = e.do(t, http.MethodPost, "/api/categories", token, map[string]string{"type": "expense", "name": "Pets"})
	if field[bool](t, env, "added") {
		t.Error("duplicate Pets added")
	}
	if w, _ := e.do(t, http.MethodPost, "/api/categories", token, map[string]string{"type": "other", "name": "X"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad type: status %d", w.Code)
	}

	_, env = e.do(t, http.MethodDelete, "/api/categories?type=expense&name=Lazer", token, nil)
	if cats := field[[]string](t, env, "categories"); contains(cats, "Lazer") {
		t.Errorf("Lazer still listed: %v", cats)
	}
}

func TestLongCategoryUsableEverywhere(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)
	name := "Assinaturas e serviços de streaming"

	if w, _ := e.do(t, http.MethodPost, "/api/categories", token, map[string]string{"type": "expense", "name": name}); w.Code != http.StatusOK {
		t.Fatalf("add: status %d", w.Code)
	}
	w, env := e.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Netflix", "amount": "55.90", "type": "expense", "category": name, "date": "2024-05-03",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create with registered label: status %d", w.Code)
	}
	id := field[models.Transaction](t, env, "transaction").ID
	if w, _ := e.do(t, http.MethodPut, "/api/transactions/"+id, token, map[string]any{
		"description": "Netflix", "amount": "59.90", "type": "expense", "category": name, "date": "2024-05-03",
	}); w.Code != http.StatusOK {
		t.Errorf("edit with registered label: status %d", w.Code)
	}

	long := strings.Repeat("a", models.MaxCategoryLen+1)
	if w, _ := e.do(t, http.MethodPost, "/api/categories", token, map[string]string{"type": "expense", "name": long}); w.Code != http.StatusBadRequest {
		t.Errorf("over-long add: status %d", w.Code)
	}
}

func TestCategoryRenameRelabelsGuestTransactions(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)

	e.do(t, http.MethodPost, "/api/categories", token, map[string]string{"type": "expense", "name": "Pets"})
	e.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Ração", "amount": "89.90", "type": "expense", "category": "Pets", "date": "2024-05-03",
	})

	w, env := e.do(t, http.MethodPut, "/api/categories/rename", token, map[string]string{"type": "expense", "old": "Pets", "new": "Animais"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename: status %d body %s", w.Code, w.Body.String())
	}
	res := field[struct {
		Updated   int  `json:"updated"`
		Persisted bool `json:"persisted"`
	}](t, env, "result")
	if res.Updated != 1 || !res.Persisted {
		t.Errorf("result = %+v", res)
	}
	if _, ok := env.Data["warning"]; ok {
		t.Error("guest rename carries a warning")
	}

	_, env = e.do(t, http.MethodGet, "/api/transactions", token, nil)
	items := field[[]models.Transaction](t, env, "items")
	if len(items) != 1 || items[0].Category != "Animais" {
		t.Errorf("items = %+v", items)
	}

	if w, _ := e.do(t, http.MethodPut, "/api/categories/rename", token, map[string]string{"type": "expense", "old": "Nada", "new": "Algo"}); w.Code != http.StatusNotFound {
		t.Errorf("rename unknown: status %d", w.Code)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)
	e.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Café", "amount": "5", "type": "expense", "category": "Alimentação", "date": "2024-05-03",
	})

	if w, _ := e.do(t, http.MethodPost, "/api/clear", token, map[string]bool{"confirm": false}); w.Code != http.StatusBadRequest {
		t.Errorf("unconfirmed: status %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodPost, "/api/clear", token, map[string]bool{"confirm": true}); w.Code != http.StatusOK {
		t.Fatalf("clear: status %d", w.Code)
	}
	_, env := e.do(t, http.MethodGet, "/api/transactions", token, nil)
	if n := field[int](t, env, "total"); n != 0 {
		t.Errorf("total after clear = %d", n)
	}
}

func TestCloudSession(t *testing.T) {
	e := setup(t, Deps{})
	token := cloudToken(t, "user-1", "sess-1")

	w, env := e.do(t, http.MethodGet, "/api/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: status %d body %s", w.Code, w.Body.String())
	}
	if mode := field[string](t, env, "mode"); mode != string(store.ModeCloud) {
		t.Errorf("mode = %q", mode)
	}

	w, env = e.do(t, http.MethodPost, "/api/clear", token, map[string]bool{"confirm": true})
	if w.Code != http.StatusConflict || env.Code != util.CodeBlocked {
		t.Errorf("cloud clear: status %d code %d", w.Code, env.Code)
	}

	_, env = e.do(t, http.MethodPost, "/api/profile", token, map[string]string{"name": "Beatriz"})
	if u := field[models.User](t, env, "user"); u.Name != "Beatriz" {
		t.Errorf("profile = %+v", u)
	}
	_, env = e.do(t, http.MethodGet, "/api/me", token, nil)
	if u := field[models.User](t, env, "user"); u.Name != "Beatriz" {
		t.Errorf("profile edit lost: %+v", u)
	}
}

func TestImportPreviewAndCommit(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)
	csv := "Data;Descrição;Categoria;Tipo;Valor\n" +
		"05/05/2024;Salário;Salário;Entrada;5.000,00\n" +
		"03/05/2024;Feira;Hortifruti;Saída;45,90\n" +
		"quebrada\n"

	w, env := e.do(t, http.MethodPost, "/api/import/preview", token, csv)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: status %d body %s", w.Code, w.Body.String())
	}
	res := field[parser.Result](t, env, "result")
	if len(res.Candidates) != 2 || res.Skipped != 1 {
		t.Fatalf("preview = %+v", res)
	}
	_, env = e.do(t, http.MethodGet, "/api/transactions", token, nil)
	if n := field[int](t, env, "total"); n != 0 {
		t.Fatalf("preview stored %d rows", n)
	}

	w, env = e.do(t, http.MethodPost, "/api/import/csv", token, csv)
	if w.Code != http.StatusOK {
		t.Fatalf("import: status %d body %s", w.Code, w.Body.String())
	}
	if n := field[int](t, env, "imported"); n != 2 {
		t.Errorf("imported = %d", n)
	}
	_, env = e.do(t, http.MethodGet, "/api/settings", token, nil)
	if s := field[models.Settings](t, env, "settings"); !contains(s.ExpenseCategories, "Hortifruti") {
		t.Errorf("expense categories = %v", s.ExpenseCategories)
	}

	if w, _ := e.do(t, http.MethodPost, "/api/import/csv", token, "Data;Valor\n"); w.Code != http.StatusBadRequest {
		t.Errorf("empty import: status %d", w.Code)
	}

	w, _ = e.do(t, http.MethodGet, "/api/export/csv", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Feira;Hortifruti;Saída;45,90") {
		t.Errorf("export: status %d body %q", w.Code, w.Body.String())
	}
}

func TestMarketReceipts(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)

	receipt := parser.ItemizedReceipt{
		Merchant: "Atacadão",
		Date:     "2024-05-10",
		Items: []parser.ReceiptLine{
			{Name: "Arroz", Category: "Grãos", Price: decimal.RequireFromString("25.90")},
			{Name: "Cerveja", Category: "Bebidas", Price: decimal.RequireFromString("4.10")},
		},
	}
	w, env := e.do(t, http.MethodPost, "/api/market/receipts", token, receipt)
	if w.Code != http.StatusOK {
		t.Fatalf("create receipt: status %d body %s", w.Code, w.Body.String())
	}
	tx := field[models.Transaction](t, env, "transaction")
	if !tx.Amount.Equal(decimal.NewFromInt(30)) || tx.Type != models.Expense {
		t.Errorf("receipt expense = %+v", tx)
	}

	_, env = e.do(t, http.MethodGet, "/api/market/receipts?month=2024-05&q=cerv", token, nil)
	groups := field[[]parser.ReceiptGroup](t, env, "receipts")
	if len(groups) != 1 || len(groups[0].Items) != 1 || groups[0].Items[0].Name != "Cerveja" {
		t.Errorf("groups = %+v", groups)
	}

	if w, _ := e.do(t, http.MethodPost, "/api/market/receipts", token, parser.ItemizedReceipt{Merchant: "X"}); w.Code != http.StatusBadRequest {
		t.Errorf("empty receipt: status %d", w.Code)
	}
}

type fakeExtractor struct {
	release chan struct{}
}

func (f *fakeExtractor) AnalyzeReceipt(ctx context.Context, data []byte, mime string, categories []string) (parser.ReceiptData, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return parser.ReceiptData{}, ctx.Err()
		}
	}
	return parser.ReceiptData{
		Amount:      decimal.RequireFromString("42.50"),
		Description: "Padaria Pão Quente",
		Date:        "2024-05-10",
		Category:    "Padaria",
	}, nil
}

func (f *fakeExtractor) AnalyzeStatement(ctx context.Context, data []byte, mime string, income, expense []string) ([]parser.StatementEntry, error) {
	return nil, errors.New("upstream down")
}

func (f *fakeExtractor) AnalyzeItemizedReceipt(ctx context.Context, data []byte, mime string) (parser.ItemizedReceipt, error) {
	return parser.ItemizedReceipt{Merchant: "Feira"}, nil
}

func upload(t *testing.T, path string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "nota.jpg")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("\xff\xd8\xff\xe0fake jpeg"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) waitTask(t *testing.T, token, id string) task.View {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, env := e.do(t, http.MethodGet, "/api/tasks/"+id, token, nil)
		v := field[task.View](t, env, "task")
		if v.Status != task.Running {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s still running", id)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScanTasks(t *testing.T) {
	e := setup(t, Deps{Extractor: &fakeExtractor{}})
	token := e.guest(t)

	w, env := e.send(t, upload(t, "/api/scan/receipt"), token)
	if w.Code != http.StatusAccepted {
		t.Fatalf("scan: status %d body %s", w.Code, w.Body.String())
	}
	id := field[task.View](t, env, "task").ID

	v := e.waitTask(t, token, id)
	if v.Status != task.Done {
		t.Fatalf("status = %s", v.Status)
	}
	raw, _ := json.Marshal(v.Result)
	var got struct {
		Candidate     parser.Candidate     `json:"candidate"`
		NewCategories []parser.NewCategory `json:"newCategories"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Candidate.Type != models.Expense || got.Candidate.Category != "Padaria" || got.Candidate.Date != "2024-05-10" {
		t.Errorf("candidate = %+v", got.Candidate)
	}
	if len(got.NewCategories) != 1 || got.NewCategories[0].Name != "Padaria" {
		t.Errorf("new categories = %+v", got.NewCategories)
	}

	other := e.guest(t)
	if w, _ := e.do(t, http.MethodGet, "/api/tasks/"+id, other, nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign task: status %d", w.Code)
	}

	_, env = e.send(t, upload(t, "/api/scan/statement"), token)
	v = e.waitTask(t, token, field[task.View](t, env, "task").ID)
	if v.Status != task.Failed || v.Error == "" || strings.Contains(v.Error, "upstream") {
		t.Errorf("failed task view = %+v", v)
	}

	if w, _ := e.send(t, upload(t, "/api/scan/unknown"), token); w.Code != http.StatusNotFound {
		t.Errorf("unknown kind: status %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodPost, "/api/scan/receipt", token, map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("no file: status %d", w.Code)
	}
}

func TestScanCancel(t *testing.T) {
	ex := &fakeExtractor{release: make(chan struct{})}
	e := setup(t, Deps{Extractor: ex})
	token := e.guest(t)

	_, env := e.send(t, upload(t, "/api/scan/receipt"), token)
	id := field[task.View](t, env, "task").ID

	w, env := e.do(t, http.MethodDelete, "/api/tasks/"+id, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status %d", w.Code)
	}
	if v := field[task.View](t, env, "task"); v.Status != task.Canceled {
		t.Errorf("status = %s", v.Status)
	}
}

func TestAIUnavailable(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)

	if w, _ := e.send(t, upload(t, "/api/scan/receipt"), token); w.Code != http.StatusServiceUnavailable {
		t.Errorf("scan: status %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "oi"}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("chat: status %d", w.Code)
	}
}

type fakeAdvisor struct {
	mu   sync.Mutex
	got  chat.Context
	err  error
	hist []chat.Turn
}

func (f *fakeAdvisor) Advise(ctx context.Context, message string, history []chat.Turn, c chat.Context) (chat.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got, f.hist = c, history
	if f.err != nil {
		return chat.Reply{}, f.err
	}
	return chat.Reply{Text: "**Economize** no mercado.", Sources: []chat.Source{{Title: "Guia", URI: "https://example.com"}}}, nil
}

func TestChat(t *testing.T) {
	adv := &fakeAdvisor{}
	e := setup(t, Deps{Advisor: adv})
	token := e.guest(t)
	e.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Café", "amount": "5", "type": "expense", "category": "Alimentação",
	})

	w, env := e.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"message": "Onde estou gastando mais?",
		"persona": "sincero",
		"history": []chat.Turn{{Role: "user", Text: "oi"}, {Role: "model", Text: "Olá!"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("chat: status %d body %s", w.Code, w.Body.String())
	}
	if html := field[string](t, env, "html"); !strings.Contains(html, "<strong>Economize</strong>") {
		t.Errorf("html = %q", html)
	}
	reply := field[chat.Reply](t, env, "reply")
	if len(reply.Sources) != 1 {
		t.Errorf("sources = %+v", reply.Sources)
	}

	adv.mu.Lock()
	got, hist := adv.got, adv.hist
	adv.mu.Unlock()
	if got.Persona != chat.Sincere || len(got.Transactions) != 1 || got.TransactionWindow != 100 {
		t.Errorf("context = %+v", got)
	}
	if got.Stats.Count != 1 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if len(hist) != 2 {
		t.Errorf("history = %+v", hist)
	}

	_, env = e.do(t, http.MethodPost, "/api/chat", token, map[string]any{"message": "oi", "persona": "pirata"})
	if p := field[string](t, env, "persona"); p != string(chat.Formal) {
		t.Errorf("persona fallback = %q", p)
	}

	if w, _ := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("blank message: status %d", w.Code)
	}

	adv.err = errors.New("quota")
	if w, _ := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "oi"}); w.Code != http.StatusBadGateway {
		t.Errorf("advisor error: status %d", w.Code)
	}
}

func TestBackupRestoreIsAdditive(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)
	e.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Aluguel", "amount": "1500", "type": "expense", "category": "Moradia", "date": "2024-05-01",
	})

	w, env := e.do(t, http.MethodPost, "/api/backups", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("backup: status %d body %s", w.Code, w.Body.String())
	}
	backup := field[map[string]any](t, env, "backup")
	id := int(backup["id"].(float64))
	if backup["transactions"].(float64) != 1 {
		t.Errorf("backup = %v", backup)
	}

	e.do(t, http.MethodPost, "/api/clear", token, map[string]bool{"confirm": true})
	e.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Internet", "amount": "99", "type": "expense", "category": "Moradia", "date": "2024-05-02",
	})

	path := "/api/backups/" + strconv.Itoa(id)
	w, env = e.do(t, http.MethodPost, path+"/restore", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: status %d body %s", w.Code, w.Body.String())
	}
	if n := field[int](t, env, "transactions"); n != 1 {
		t.Errorf("restored = %d", n)
	}
	_, env = e.do(t, http.MethodGet, "/api/transactions", token, nil)
	if n := field[int](t, env, "total"); n != 2 {
		t.Errorf("total after restore = %d", n)
	}

	w, _ = e.do(t, http.MethodGet, path+"/download", token, nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Errorf("download: status %d size %d", w.Code, w.Body.Len())
	}

	other := e.guest(t)
	if w, _ := e.do(t, http.MethodPost, path+"/restore", other, nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign restore: status %d", w.Code)
	}

	if w, _ := e.do(t, http.MethodDelete, path, token, nil); w.Code != http.StatusOK {
		t.Errorf("delete: status %d", w.Code)
	}
	_, env = e.do(t, http.MethodGet, "/api/backups", token, nil)
	if items := field[[]any](t, env, "items"); len(items) != 0 {
		t.Errorf("backups after delete = %v", items)
	}
}

func TestAuditLog(t *testing.T) {
	e := setup(t, Deps{})
	token := e.guest(t)
	e.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Cinema", "amount": "30", "type": "expense", "category": "Lazer",
	})

	var stored models.AuditLog
	if err := e.db.First(&stored).Error; err != nil {
		t.Fatalf("audit row: %v", err)
	}
	if strings.Contains(stored.PathEnc, "/api/transactions") || strings.Contains(stored.ActionEnc, "Cinema") {
		t.Errorf("audit stored in plain text: %+v", stored)
	}

	w, env := e.do(t, http.MethodGet, "/api/audit?start="+time.Now().Format("2006-01-02"), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit: status %d body %s", w.Code, w.Body.String())
	}
	items := field[[]struct {
		Method string `json:"method"`
		Path   string `json:"path"`
		Action string `json:"action"`
		Status int    `json:"status"`
	}](t, env, "items")
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Method != http.MethodPost || items[0].Path != "/api/transactions" || !strings.Contains(items[0].Action, "Cinema") || items[0].Status != http.StatusOK {
		t.Errorf("item = %+v", items[0])
	}

	if w, _ := e.do(t, http.MethodGet, "/api/audit?start=ontem", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad start: status %d", w.Code)
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
