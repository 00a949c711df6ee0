package gateway

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"meritledger/core/types"
	"meritledger/gateway/middleware"
	"meritledger/native/funding"
	"meritledger/native/ledger"
	"meritledger/native/wallet"
	"meritledger/observability/metrics"
	"meritledger/state"
)

// Amounts cross the wire as decimal strings in minor units.

type transactionResponse struct {
	ID           string `json:"id"`
	From         string `json:"from"`
	Community    string `json:"community"`
	TargetType   string `json:"targetType"`
	TargetID     string `json:"targetId"`
	ParentID     string `json:"parentId,omitempty"`
	AmountQuota  string `json:"amountQuota"`
	AmountWallet string `json:"amountWallet"`
	AmountTotal  string `json:"amountTotal"`
	Comment      string `json:"comment,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

func newTransactionResponse(tx *ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		From:         tx.From,
		Community:    tx.Community,
		TargetType:   string(tx.TargetType),
		TargetID:     tx.TargetID,
		ParentID:     tx.ParentID,
		AmountQuota:  amountString(tx.AmountQuota),
		AmountWallet: amountString(tx.AmountWallet),
		AmountTotal:  amountString(tx.AmountTotal),
		Comment:      tx.Comment,
		CreatedAt:    tx.CreatedAt,
	}
}

type targetResponse struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Community        string `json:"community"`
	Author           string `json:"author"`
	Beneficiary      string `json:"beneficiary,omitempty"`
	ParentID         string `json:"parentId,omitempty"`
	InvestingEnabled bool   `json:"investingEnabled"`
	InvestorShare    uint32 `json:"investorShare,omitempty"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"createdAt"`
}

func newTargetResponse(t *types.Target) targetResponse {
	return targetResponse{
		ID:               t.ID,
		Type:             string(t.Type),
		Community:        t.Community,
		Author:           t.Author,
		Beneficiary:      t.Beneficiary,
		ParentID:         t.ParentID,
		InvestingEnabled: t.InvestingEnabled,
		InvestorShare:    t.InvestorShare,
		Status:           t.Status.String(),
		CreatedAt:        t.CreatedAt,
	}
}

type closingResponse struct {
	PublicationID string `json:"publicationId"`
	TotalEarned   string `json:"totalEarned"`
	PoolReturned  string `json:"poolReturned"`
	Distributed   string `json:"distributedToInvestors"`
	AuthorShare   string `json:"authorReceived"`
	ClosedAt      int64  `json:"closedAt"`
}

func newClosingResponse(s *funding.ClosingSummary) closingResponse {
	return closingResponse{
		PublicationID: s.PublicationID,
		TotalEarned:   amountString(s.TotalEarned),
		PoolReturned:  amountString(s.PoolReturned),
		Distributed:   amountString(s.Distributed),
		AuthorShare:   amountString(s.AuthorShare),
		ClosedAt:      s.ClosedAt,
	}
}

// --- mutating routes ---

func (s *Server) handleRegisterPublication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID               string `json:"id"`
		Community        string `json:"community"`
		Author           string `json:"author"`
		Beneficiary      string `json:"beneficiary"`
		InvestingEnabled bool   `json:"investingEnabled"`
		InvestorShare    uint32 `json:"investorShare"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	author := s.actorOr(r, req.Author)
	target, err := s.node.RegisterPublication(req.ID, req.Community, author, req.Beneficiary, req.InvestingEnabled, req.InvestorShare)
	if err != nil {
		s.writeError(w, "registerPublication", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newTargetResponse(target))
}

func (s *Server) handleRegisterComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		Community string `json:"community"`
		Author    string `json:"author"`
		ParentID  string `json:"parentId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	author := s.actorOr(r, req.Author)
	target, err := s.node.RegisterComment(req.ID, req.Community, author, req.ParentID)
	if err != nil {
		s.writeError(w, "registerComment", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newTargetResponse(target))
}

func (s *Server) handleRegisterPollOption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		Community string `json:"community"`
		Author    string `json:"author"`
		ParentID  string `json:"parentId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	author := s.actorOr(r, req.Author)
	target, err := s.node.RegisterPollOption(req.ID, req.Community, author, req.ParentID)
	if err != nil {
		s.writeError(w, "registerPollOption", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newTargetResponse(target))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From     string `json:"from"`
		TargetID string `json:"targetId"`
		Amount   string `json:"amount"`
		Comment  string `json:"comment"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseSignedAmount(req.Amount)
	if !ok {
		s.writeError(w, "record", ledger.ErrInvalidAmount)
		return
	}
	from := s.actorOr(r, req.From)
	record, err := s.node.Record(from, req.TargetID, amount, req.Comment)
	if err != nil {
		s.writeError(w, "record", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newTransactionResponse(record))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   string `json:"caller"`
		TargetID string `json:"targetId"`
		Amount   string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseSignedAmount(req.Amount)
	if !ok {
		s.writeError(w, "withdraw", ledger.ErrInvalidAmount)
		return
	}
	caller := s.actorOr(r, req.Caller)
	record, err := s.node.Withdraw(req.TargetID, caller, amount)
	if err != nil {
		s.writeError(w, "withdraw", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newTransactionResponse(record))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Community string `json:"community"`
		From      string `json:"from"`
		To        string `json:"to"`
		Amount    string `json:"amount"`
		Comment   string `json:"comment"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseSignedAmount(req.Amount)
	if !ok {
		s.writeError(w, "transfer", ledger.ErrInvalidAmount)
		return
	}
	from := s.actorOr(r, req.From)
	record, err := s.node.Transfer(req.Community, from, req.To, amount, req.Comment)
	if err != nil {
		s.writeError(w, "transfer", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newTransactionResponse(record))
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Investor      string `json:"investor"`
		PublicationID string `json:"publicationId"`
		Amount        string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseSignedAmount(req.Amount)
	if !ok {
		s.writeError(w, "invest", funding.ErrInvalidAmount)
		return
	}
	investor := s.actorOr(r, req.Investor)
	contribution, err := s.node.Invest(req.PublicationID, investor, amount)
	if err != nil {
		s.writeError(w, "invest", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"investor":      contribution.Investor,
		"publicationId": contribution.PublicationID,
		"amount":        amountString(contribution.Amount),
		"createdAt":     contribution.CreatedAt,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requester string `json:"requester"`
	}
	// The close body is optional when the requester comes from the token.
	_ = json.NewDecoder(r.Body).Decode(&req)
	requester := s.actorOr(r, req.Requester)
	summary, err := s.node.ClosePublication(chi.URLParam(r, "id"), requester)
	if err != nil {
		if errors.Is(err, funding.ErrAlreadyClosed) && summary != nil {
			s.writeJSON(w, http.StatusOK, newClosingResponse(summary))
			return
		}
		s.writeError(w, "close", err)
		return
	}
	s.writeJSON(w, http.StatusOK, newClosingResponse(summary))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor     string `json:"actor"`
		Community string `json:"community"`
		Amount    string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseSignedAmount(req.Amount)
	if !ok {
		s.writeError(w, "deposit", wallet.ErrInvalidAmount)
		return
	}
	balance, err := s.node.Deposit(req.Actor, req.Community, amount)
	if err != nil {
		s.writeError(w, "deposit", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"balance": amountString(balance)})
}

// --- read projections ---

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.node.Balance(chi.URLParam(r, "actor"), chi.URLParam(r, "community"))
	if err != nil {
		s.writeError(w, "balance", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"balance": amountString(balance)})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	remaining, err := s.node.QuotaAvailable(chi.URLParam(r, "actor"), chi.URLParam(r, "community"))
	if err != nil {
		s.writeError(w, "quota", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"remaining": amountString(remaining)})
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	target, err := s.node.Target(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "target", err)
		return
	}
	s.writeJSON(w, http.StatusOK, newTargetResponse(target))
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.node.Score(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "score", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"positive": amountString(score.Positive),
		"negative": amountString(score.Negative),
		"net":      amountString(score.Net()),
	})
}

func (s *Server) handleTargetTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := s.node.TransactionsForTarget(chi.URLParam(r, "id"), pagination(r))
	if err != nil {
		s.writeError(w, "listTarget", err)
		return
	}
	s.writeTransactions(w, records)
}

func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	records, err := s.node.TransactionsForParent(chi.URLParam(r, "id"), pagination(r))
	if err != nil {
		s.writeError(w, "listReplies", err)
		return
	}
	s.writeTransactions(w, records)
}

func (s *Server) handleActorTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := s.node.TransactionsForActor(chi.URLParam(r, "actor"), pagination(r))
	if err != nil {
		s.writeError(w, "listActor", err)
		return
	}
	s.writeTransactions(w, records)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	record, err := s.node.Transaction(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "transaction", err)
		return
	}
	s.writeJSON(w, http.StatusOK, newTransactionResponse(record))
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	total, err := s.node.PoolTotal(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "pool", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"poolTotal": amountString(total)})
}

func (s *Server) handleClosing(w http.ResponseWriter, r *http.Request) {
	summary, ok, err := s.node.ClosingSummary(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "closing", err)
		return
	}
	if !ok {
		http.Error(w, "publication not closed", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, newClosingResponse(summary))
}

// --- helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

// actorOr prefers the authenticated identity and falls back to the request
// field when authentication is disabled.
func (s *Server) actorOr(r *http.Request, fallback string) string {
	if actor, ok := middleware.Actor(r.Context()); ok {
		return actor
	}
	return strings.TrimSpace(fallback)
}

func (s *Server) writeTransactions(w http.ResponseWriter, records []*ledger.Transaction) {
	out := make([]transactionResponse, 0, len(records))
	for _, record := range records {
		out = append(out, newTransactionResponse(record))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, operation string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("operation failed", "operation", operation, "err", err)
	}
	metrics.Ledger().ObserveRejection(operation, reasonForError(err))
	http.Error(w, err.Error(), status)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrTargetNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, funding.ErrPublicationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrTargetClosed),
		errors.Is(err, funding.ErrPublicationClosed),
		errors.Is(err, funding.ErrAlreadyClosed),
		errors.Is(err, state.ErrTargetExists):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNotAuthorized),
		errors.Is(err, funding.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrSelfFunding),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrAmountExceedsScore):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, funding.ErrInvalidAmount),
		errors.Is(err, funding.ErrInvestingDisabled),
		errors.Is(err, funding.ErrNotPublication),
		errors.Is(err, ledger.ErrInvalidTarget):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func reasonForError(err error) string {
	switch {
	case errors.Is(err, ledger.ErrSelfFunding):
		return "self_funding"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrAmountExceedsScore):
		return "exceeds_score"
	case errors.Is(err, ledger.ErrTargetClosed), errors.Is(err, funding.ErrPublicationClosed):
		return "closed"
	case errors.Is(err, ledger.ErrNotAuthorized), errors.Is(err, funding.ErrNotAuthorized):
		return "not_authorized"
	default:
		return "other"
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseSignedAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	return v, ok
}

func pagination(r *http.Request) ledger.Pagination {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return ledger.Pagination{Offset: offset, Limit: limit}
}
