package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/exchange"
	"fintrack/internal/logger"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
)

// ImportExportHandler moves transactions in and out as spreadsheet files.
type ImportExportHandler struct{}

func NewImportExportHandler() *ImportExportHandler {
	return &ImportExportHandler{}
}

// ExportCSV downloads every transaction of the session as CSV.
func (h *ImportExportHandler) ExportCSV(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	txns := s.State.Transactions()
	if len(txns) == 0 {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "não há dados para exportar")
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", exchange.FileName(time.Now(), "csv")))
	if err := exchange.WriteCSV(c.Writer, txns); err != nil {
		logger.L().Error().Err(err).Str("session_id", s.ID).Msg("csv_export_failed")
	}
}

// ExportXLSX downloads transactions and market items as a workbook.
func (h *ImportExportHandler) ExportXLSX(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	txns := s.State.Transactions()
	if len(txns) == 0 {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "não há dados para exportar")
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", exchange.FileName(time.Now(), "xlsx")))
	if err := exchange.WriteXLSX(c.Writer, txns, s.State.MarketItems()); err != nil {
		logger.L().Error().Err(err).Str("session_id", s.ID).Msg("xlsx_export_failed")
	}
}

// readUpload returns the text of the "file" form field, or the raw body
// when the request is not a multipart form.
func readUpload(c *gin.Context) (string, error) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("arquivo ausente")
		}
		f, err := fh.Open()
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	return exchange.ReadImport(r)
}

// Preview parses an upload for review without storing anything.
func (h *ImportExportHandler) Preview(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	raw, err := readUpload(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	res := s.ParseImport(raw)
	util.Success(c, util.Response{"result": res})
}

// ImportCSV parses an upload, registers its new categories and stores
// every readable row.
func (h *ImportExportHandler) ImportCSV(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	raw, err := readUpload(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	res, n, err := s.Import(c.Request.Context(), raw, true)
	if err != nil {
		storeError(c, err)
		return
	}
	if len(res.Candidates) == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "nenhuma transação válida encontrada no arquivo")
		return
	}
	logger.L().Info().Str("session_id", s.ID).Int("imported", n).Int("skipped", res.Skipped).Msg("csv_imported")
	util.Success(c, util.Response{
		"imported":      n,
		"skipped":       res.Skipped,
		"newCategories": res.NewCategories,
	})
}
