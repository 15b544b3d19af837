package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"fintrack/internal/ai"
	"fintrack/internal/models"
	"fintrack/internal/parser"
	"fintrack/internal/task"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
)

// MaxScanSize bounds an uploaded image or PDF.
const MaxScanSize = 10 << 20

const scanFailedMsg = "Erro ao analisar o documento. Tente novamente."

// Task kinds.
const (
	KindReceipt   = "receipt"
	KindStatement = "statement"
	KindMarket    = "market"
)

// ScanHandler starts AI extractions as background tasks. Results are
// returned for review; nothing is stored until the client commits them.
type ScanHandler struct {
	Extractor ai.Extractor
	Tasks     *task.Manager
	// Base outlives single requests so a scan survives its upload call.
	Base context.Context
}

func NewScanHandler(ex ai.Extractor, tasks *task.Manager, base context.Context) *ScanHandler {
	return &ScanHandler{Extractor: ex, Tasks: tasks, Base: base}
}

type receiptScan struct {
	Candidate     parser.Candidate     `json:"candidate"`
	NewCategories []parser.NewCategory `json:"newCategories"`
}

func readScan(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", errors.New("arquivo ausente")
	}
	if fh.Size > MaxScanSize {
		return nil, "", errors.New("arquivo muito grande")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxScanSize))
	if err != nil {
		return nil, "", err
	}
	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// Scan handles POST /scan/:kind with a multipart "file" field and replies
// with the id of the started task.
func (h *ScanHandler) Scan(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if h.Extractor == nil {
		util.Error(c, http.StatusServiceUnavailable, util.CodeUpstream, "leitura por IA não configurada")
		return
	}

	kind := c.Param("kind")
	var fn func(ctx context.Context, data []byte, mime string) (any, error)
	income, expense := s.State.Categories(models.Income), s.State.Categories(models.Expense)
	policy := s.CategoryPolicy()
	switch kind {
	case KindReceipt:
		fn = func(ctx context.Context, data []byte, mime string) (any, error) {
			d, err := h.Extractor.AnalyzeReceipt(ctx, data, mime, expense)
			if err != nil {
				return nil, err
			}
			res := parser.NewResolver(income, expense, policy)
			cand := parser.FromReceipt(d, res, time.Now())
			return receiptScan{Candidate: cand, NewCategories: res.Added()}, nil
		}
	case KindStatement:
		fn = func(ctx context.Context, data []byte, mime string) (any, error) {
			entries, err := h.Extractor.AnalyzeStatement(ctx, data, mime, income, expense)
			if err != nil {
				return nil, err
			}
			res := parser.NewResolver(income, expense, policy)
			return parser.FromStatement(entries, res, time.Now()), nil
		}
	case KindMarket:
		fn = func(ctx context.Context, data []byte, mime string) (any, error) {
			return h.Extractor.AnalyzeItemizedReceipt(ctx, data, mime)
		}
	default:
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "tipo de leitura desconhecido")
		return
	}

	data, mime, err := readScan(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	handle, err := h.Tasks.Start(h.Base, s.ID, kind, func(ctx context.Context) (any, error) {
		return fn(ctx, data, mime)
	})
	if err != nil {
		util.Error(c, http.StatusServiceUnavailable, util.CodeServerErr, "servidor encerrando")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code": util.CodeOK,
		"data": util.Response{"task": taskView(handle)},
	})
}

func taskView(h *task.Handle) task.View {
	v := h.View()
	if v.Status == task.Failed {
		v.Error = scanFailedMsg
	}
	return v
}

// GetTask reports the status and, once done, the result of a scan.
func (h *ScanHandler) GetTask(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	handle, err := h.Tasks.Get(s.ID, c.Param("id"))
	if err != nil {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "tarefa não encontrada")
		return
	}
	util.Success(c, util.Response{"task": taskView(handle)})
}

// CancelTask aborts a running scan.
func (h *ScanHandler) CancelTask(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	handle, err := h.Tasks.Cancel(s.ID, c.Param("id"))
	if err != nil {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "tarefa não encontrada")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = handle.Wait(ctx)
	util.Success(c, util.Response{"task": taskView(handle)})
}
