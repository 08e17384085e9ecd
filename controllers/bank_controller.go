package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/stepacool/cursor-hackathon-submission/middleware"
	"github.com/stepacool/cursor-hackathon-submission/services"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

const maxBodyBytes = 1 << 20

type CreateAccountRequest struct {
	Title          string      `json:"title"`
	Currency       string      `json:"currency"`
	InitialBalance json.Number `json:"initialBalance"`
}

// UpdateStatusRequest - смена статуса счета. TransferToAccountNumber допустим
// только для close: остаток переводится на этот счет владельца.
type UpdateStatusRequest struct {
	Action                  string `json:"action"`
	TransferToAccountNumber string `json:"transferToAccountNumber"`
}

type TransferRequest struct {
	FromAccountID   json.Number `json:"fromAccountId"`
	ToAccountNumber string      `json:"toAccountNumber"`
	Amount          json.Number `json:"amount"`
	RecipientName   string      `json:"recipientName"`
	Note            string      `json:"note"`
}

// BankController обрабатывает запросы, связанные с банковскими операциями
type BankController struct {
	bankService      *services.BankService
	transferService  *services.TransferService
	lifecycleService *services.LifecycleService
	statementService *services.StatementService
	notifier         services.Notifier
	notifyTimeout    time.Duration
	transferLimiter  utils.Limiter
}

// NewBankController создает новый экземпляр BankController. notifier и limiter могут быть nil.
func NewBankController(
	bank *services.BankService,
	transfer *services.TransferService,
	lifecycle *services.LifecycleService,
	statement *services.StatementService,
	notifier services.Notifier,
	limiter utils.Limiter,
) *BankController {
	return &BankController{
		bankService:      bank,
		transferService:  transfer,
		lifecycleService: lifecycle,
		statementService: statement,
		notifier:         notifier,
		notifyTimeout:    10 * time.Second,
		transferLimiter:  limiter,
	}
}

// RegisterRoutes регистрирует маршруты контроллера на защищенном подроутере /api
func (c *BankController) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bank/accounts", c.GetAccounts).Methods(http.MethodGet)
	router.HandleFunc("/bank/accounts", c.CreateBankAccount).Methods(http.MethodPost)
	router.HandleFunc("/bank/accounts/{id}", c.GetAccount).Methods(http.MethodGet)
	router.HandleFunc("/bank/accounts/{id}", c.UpdateAccountStatus).Methods(http.MethodPatch)
	router.HandleFunc("/bank/accounts/{id}/statement", c.GetStatement).Methods(http.MethodGet)
	router.HandleFunc("/bank/transactions", c.GetTransactions).Methods(http.MethodGet)
	router.Handle("/bank/transactions", middleware.RateLimit(c.transferLimiter)(http.HandlerFunc(c.Transfer))).Methods(http.MethodPost)
	router.HandleFunc("/bank/otps", c.GetOTPs).Methods(http.MethodGet)
}

// GetAccounts возвращает счета пользователя
func (c *BankController) GetAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(w, r)
	if !ok {
		return
	}

	accounts, err := c.bankService.ListAccounts(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", accounts)
}

// CreateBankAccount обрабатывает запрос на создание банковского счета
func (c *BankController) CreateBankAccount(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := c.bankService.CreateBankAccount(r.Context(), services.CreateBankAccountDTO{
		Title:          req.Title,
		Currency:       req.Currency,
		InitialBalance: req.InitialBalance.String(),
		UserID:         userID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Bank account created successfully", account)
}

// GetAccount возвращает счет пользователя по id
func (c *BankController) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(w, r)
	if !ok {
		return
	}
	accountID, ok := accountIDFromPath(w, r)
	if !ok {
		return
	}

	account, err := c.bankService.GetAccount(r.Context(), accountID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", account)
}

// UpdateAccountStatus замораживает, размораживает или закрывает счет
func (c *BankController) UpdateAccountStatus(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(w, r)
	if !ok {
		return
	}
	accountID, ok := accountIDFromPath(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	action, err := services.ParseLifecycleAction(req.Action)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	transferTo := strings.TrimSpace(req.TransferToAccountNumber)
	if transferTo != "" && action != services.ActionClose {
		writeError(w, http.StatusBadRequest, "transferToAccountNumber is only allowed when closing an account")
		return
	}

	var result *services.StatusChangeResult
	if transferTo != "" {
		result, err = c.lifecycleService.CloseAndTransfer(r.Context(), accountID, userID, transferTo)
	} else {
		result, err = c.lifecycleService.SetStatus(r.Context(), accountID, userID, action)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	account := result.Account
	c.notify(r.Context(), func(ctx context.Context) {
		c.notifier.AccountStatusChanged(ctx, &account, action)
	})
	writeSuccess(w, http.StatusOK, result.Message, result.Account)
}

// GetStatement отдает XML-выписку по счету
func (c *BankController) GetStatement(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(w, r)
	if !ok {
		return
	}
	accountID, ok := accountIDFromPath(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	statement, err := c.statementService.Statement(r.Context(), accountID, userID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(statement)
}

// GetTransactions возвращает операции по счетам пользователя
func (c *BankController) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(w, r)
	if !ok {
		return
	}

	rows, err := c.bankService.ListTransactions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", rows)
}

// Transfer обрабатывает запрос на перевод средств между счетами
func (c *BankController) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, email, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// Нецелый или нечисловой id превращается в 0 и отклоняется валидатором
	fromID, _ := strconv.ParseInt(req.FromAccountID.String(), 10, 64)

	result, err := c.transferService.Transfer(r.Context(), services.TransferInput{
		FromAccountID:   fromID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount.String(),
		RecipientName:   req.RecipientName,
		Note:            req.Note,
		OwnerID:         userID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	c.notify(r.Context(), func(ctx context.Context) {
		c.notifier.TransferCompleted(ctx, result, userID, email)
	})
	writeSuccess(w, http.StatusCreated, "Transfer completed successfully", result)
}

// GetOTPs возвращает одноразовые коды пользователя
func (c *BankController) GetOTPs(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(w, r)
	if !ok {
		return
	}

	otps, err := c.bankService.ListOTPs(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", otps)
}

// notify запускает уведомление после ответа клиенту; его сбой на ответ не влияет
func (c *BankController) notify(ctx context.Context, fn func(ctx context.Context)) {
	if c.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID, email, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", "", false
	}
	return userID, email, true
}

func accountIDFromPath(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(mux.Vars(r)["id"]), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "Invalid account id")
		return 0, false
	}
	return uint(id), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
