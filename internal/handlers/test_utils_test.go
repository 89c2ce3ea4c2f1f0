package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"didex/internal/deal"
	"didex/internal/ledger"
	"didex/internal/models"
	"didex/internal/services/storage"
)

// fakeLedger всегда подтверждает транзакции; используется вместо узла сети.
type fakeLedger struct {
	status ledger.TxnStatus
}

func (f *fakeLedger) SubmitTransaction(context.Context, string, []byte) (string, error) {
	return "0xfake", nil
}

func (f *fakeLedger) GetTransactionStatus(context.Context, string) (ledger.TxnStatus, error) {
	if f.status == "" {
		return ledger.TxnStatusConfirmed, nil
	}
	return f.status, nil
}

func (f *fakeLedger) GetAccountPermissions(context.Context, string) (ledger.Permissions, error) {
	return ledger.Permissions{}, ledger.ErrUnavailable
}

var testDBSeq int

// setupTest создаёт in-memory БД и маршруты для тестов.
func setupTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDBSeq++
	dsn := fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Account{},
		&models.Token{},
		&models.Country{},
		&models.EscrowAccount{},
		&models.EscrowTxnLog{},
		&models.Deal{},
		&models.Attachment{},
		&models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&models.Country{Name: "Spain"}).Error; err != nil {
		t.Fatalf("seed country: %v", err)
	}

	ttl := map[string]time.Duration{"access": time.Minute, "refresh": time.Hour}
	engine := deal.NewEngine(db)
	clients := map[string]ledger.Client{"tron": &fakeLedger{}}
	store, err := storage.New("", "", "", "", false)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	r := gin.Default()
	r.GET("/health", Health(db))
	auth := r.Group("/auth")
	auth.POST("/register", Register(db, ttl))
	auth.POST("/login", Login(db, ttl))
	auth.POST("/refresh", Refresh(db, ttl))
	auth.GET("/recover/:username", RecoverChallenge(db))
	auth.POST("/recover", Recover(db, ttl))
	auth.Use(AuthMiddleware(db))
	auth.GET("/profile", Profile(db))
	auth.POST("/logout", Logout(db))
	auth.POST("/pincode", SetPinCode(db))
	auth.POST("/2fa/enable", Enable2FA(db))
	auth.POST("/password", ChangePassword(db))

	api := r.Group("/")
	api.Use(AuthMiddleware(db))
	api.GET("/countries", GetCountries(db))
	api.POST("/escrows", RegisterEscrow(db))
	api.GET("/escrows", ListEscrows(db))
	api.GET("/escrows/:id", GetEscrow(db))
	api.POST("/escrows/:id/arbiter", ReassignArbiter(db))
	api.POST("/escrows/:id/deactivate", DeactivateEscrow(db))
	api.POST("/deals", CreateDeal(engine, db))
	api.GET("/deals", ListDeals(db))
	api.GET("/deals/:id", GetDeal(engine))
	api.GET("/deals/:id/actions", GetDealActions(db))
	api.GET("/deals/:id/history", DealHistory(db))
	api.PUT("/deals/:id/requisites", SubmitDealRequisites(engine, db))
	api.POST("/deals/:id/deposit", ReportDeposit(engine, db, clients))
	api.POST("/deals/:id/approve", ApproveDeal(engine, db))
	api.POST("/deals/:id/appeal", AppealDeal(engine, db))
	api.POST("/deals/:id/appeal/resolve", ResolveDealAppeal(engine, db))
	api.POST("/deals/:id/payout", ConfirmDealPayout(engine, db))
	api.POST("/deals/:id/attachments", UploadDealAttachment(db, store))
	api.GET("/deals/:id/attachments", ListDealAttachments(db, store))
	api.DELETE("/deals/:id/attachments/:attachmentId", DeleteDealAttachment(db, store))
	api.GET("/notifications", ListNotifications(db))
	api.POST("/notifications/read-all", ReadAllNotifications(db))
	api.PATCH("/notifications/:id/read", ReadNotification(db))

	return db, r
}

// doJSON выполняет запрос с JSON-телом и возвращает рекордер.
func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// registerAccount регистрирует аккаунт и возвращает access-токен и DID.
func registerAccount(t *testing.T, r *gin.Engine, username string) (string, string) {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/auth/register", "", RegisterRequest{
		Username:        username,
		Password:        "secret123",
		PasswordConfirm: "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var resp RegisterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return resp.AccessToken, resp.DID
}
