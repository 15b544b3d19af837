package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/category"
	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/session"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BackupHandler keeps encrypted snapshots of a session's records on disk.
type BackupHandler struct {
	DB         *gorm.DB
	EncryptKey string
	BackupDir  string
}

func NewBackupHandler(db *gorm.DB, encryptKey, backupDir string) *BackupHandler {
	return &BackupHandler{
		DB:         db,
		EncryptKey: encryptKey,
		BackupDir:  backupDir,
	}
}

// backupData is the plaintext of a backup file.
type backupData struct {
	UserID       string              `json:"user_id"`
	Created      time.Time           `json:"created"`
	Transactions []models.Transaction `json:"transactions"`
	MarketItems  []models.MarketItem `json:"market_items"`
	Settings     models.Settings     `json:"settings"`
}

func backupView(b *models.Backup) gin.H {
	return gin.H{
		"id":           b.ID,
		"file_name":    b.FileName,
		"size":         b.Size,
		"transactions": b.Transactions,
		"market_items": b.MarketItems,
		"created_at":   b.CreatedAt,
	}
}

// CreateBackup writes an encrypted snapshot of the current session.
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	data := backupData{
		UserID:       s.User.ID,
		Created:      time.Now(),
		Transactions: s.State.Transactions(),
		MarketItems:  s.State.MarketItems(),
		Settings:     s.Settings(),
	}
	raw, err := json.Marshal(&data)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao serializar")
		return
	}
	enc, err := util.EncryptAES(h.EncryptKey, raw)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao criptografar")
		return
	}

	if err := os.MkdirAll(h.BackupDir, 0o755); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao criar diretório de backup")
		return
	}
	fileName := fmt.Sprintf("backup-%s-%s.bin", time.Now().Format("20060102"), uuid.NewString())
	filePath := filepath.Join(h.BackupDir, fileName)
	if err := os.WriteFile(filePath, enc, 0o600); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao gravar backup")
		return
	}

	backup := models.Backup{
		UserID:       s.User.ID,
		FileName:     fileName,
		FilePath:     filePath,
		Size:         int64(len(enc)),
		Transactions: len(data.Transactions),
		MarketItems:  len(data.MarketItems),
	}
	if err := h.DB.Create(&backup).Error; err != nil {
		_ = os.Remove(filePath)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao registrar backup")
		return
	}

	logger.L().Info().Str("user_id", s.User.ID).Uint("backup_id", backup.ID).Msg("backup_created")
	util.Success(c, util.Response{"backup": backupView(&backup)})
}

func (h *BackupHandler) ListBackups(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var list []models.Backup
	if err := h.DB.Where("user_id = ?", user.ID).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao listar backups")
		return
	}
	items := make([]gin.H, 0, len(list))
	for i := range list {
		items = append(items, backupView(&list[i]))
	}
	util.Success(c, util.Response{"items": items})
}

// find loads the backup named by the id parameter if the user owns it.
func (h *BackupHandler) find(c *gin.Context) (*models.Backup, bool) {
	user, ok := currentUser(c)
	if !ok {
		return nil, false
	}
	var backup models.Backup
	err := h.DB.Where("id = ? AND user_id = ?", c.Param("id"), user.ID).First(&backup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "backup não encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao buscar backup")
		}
		return nil, false
	}
	return &backup, true
}

func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	backup, ok := h.find(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", backup.FileName))
	c.File(backup.FilePath)
}

// DeleteBackup removes the file first, then the record.
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	backup, ok := h.find(c)
	if !ok {
		return
	}
	_ = os.Remove(backup.FilePath)
	if err := h.DB.Delete(backup).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao remover backup")
		return
	}
	util.Success(c, util.Response{"message": "backup removido"})
}

// RestoreBackup merges a snapshot into the current session. Records are
// upserted by id and nothing already stored is deleted.
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	backup, ok := h.find(c)
	if !ok {
		return
	}

	enc, err := os.ReadFile(backup.FilePath)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao ler backup")
		return
	}
	raw, err := util.DecryptAES(h.EncryptKey, enc)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao descriptografar backup")
		return
	}
	var data backupData
	if err := json.Unmarshal(raw, &data); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "backup corrompido")
		return
	}
	if data.UserID != "" && data.UserID != s.User.ID {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "o backup pertence a outro usuário")
		return
	}

	n, items, err := restore(c, s, &data)
	if err != nil {
		storeError(c, err)
		return
	}
	logger.L().Info().Str("user_id", s.User.ID).Uint("backup_id", backup.ID).
		Int("transactions", n).Int("market_items", items).Msg("backup_restored")
	util.Success(c, util.Response{
		"transactions": n,
		"market_items": items,
	})
}

func restore(c *gin.Context, s *session.Session, data *backupData) (int, int, error) {
	ctx := c.Request.Context()
	sets := map[models.TxType][]string{
		models.Income:  data.Settings.IncomeCategories,
		models.Expense: data.Settings.ExpenseCategories,
	}
	for t, names := range sets {
		for _, name := range names {
			if _, err := s.Categories.Add(ctx, t, name); err != nil {
				if errors.Is(err, category.ErrInvalidName) {
					continue
				}
				return 0, 0, err
			}
		}
	}

	n := 0
	for _, t := range data.Transactions {
		if _, err := s.SaveTransaction(ctx, t, true); err != nil {
			if errors.Is(err, session.ErrInvalidTransaction) {
				continue
			}
			return n, 0, err
		}
		n++
	}

	have := map[string]bool{}
	for _, it := range s.State.MarketItems() {
		have[it.ID] = true
	}
	var fresh []models.MarketItem
	for _, it := range data.MarketItems {
		if !have[it.ID] {
			fresh = append(fresh, it)
		}
	}
	if len(fresh) > 0 {
		if err := s.Store.AddMarketItems(ctx, fresh); err != nil {
			return n, 0, err
		}
	}
	return n, len(fresh), nil
}
