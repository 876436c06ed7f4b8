/*
handlers.go - HTTP handlers for the loyalty program

PURPOSE:
  Exposes the ledger core over REST. Handlers parse and validate the
  HTTP shape of a request, delegate to domain logic, and translate
  domain errors into status codes. No business rule lives here.

ENDPOINTS:
  Ledger:
    POST   /transacoes           Record a purchase (admin)
    GET    /clientes/{cpf}       Balance lookup (public)
    GET    /clientes/{cpf}/extrato  Statement (public)
    POST   /clientes/registro    Customer self-registration (public)
    POST   /resgates             Redeem a reward (operator)

  Catalog:
    GET    /recompensas          Full catalog (operator)
    GET    /recompensas/publica  Active rewards, cheapest first (public)
    POST   /recompensas          Create (admin)
    PUT    /recompensas/{id}     Update (admin)
    DELETE /recompensas/{id}     Deactivate (admin)

  Accounts:
    POST   /usuarios/registro    Create operator account
    POST   /usuarios/login       Issue session token

  Admin:
    GET    /dashboard/stats      Aggregate figures
    GET    /admin/auditoria      Operator activity log

ERROR HANDLING:
  Business-rule failures map to 400/404/409 with a user-facing message;
  everything else is logged server-side and surfaced as a generic 500.
  A failure inside a ledger transaction has already rolled back by the
  time it reaches this layer.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fidelium/pontos/auth"
	"github.com/fidelium/pontos/catalog"
	"github.com/fidelium/pontos/ledger"
	"github.com/fidelium/pontos/metrics"
	"github.com/fidelium/pontos/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Recorder *ledger.GrantRecorder
	Engine   *ledger.RedemptionEngine
	Balance  *ledger.BalanceCalculator
	Catalog  *catalog.Service
	Auth     *auth.Service
	Log      *zap.Logger
}

// NewHandler wires the handler from a store and the two timing-aware
// engines built on it.
func NewHandler(store *sqlite.Store, recorder *ledger.GrantRecorder, engine *ledger.RedemptionEngine, authSvc *auth.Service, log *zap.Logger) *Handler {
	return &Handler{
		Store:    store,
		Recorder: recorder,
		Engine:   engine,
		Balance:  ledger.NewBalanceCalculator(store),
		Catalog:  catalog.NewService(store),
		Auth:     authSvc,
		Log:      log,
	}
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// CreateTransacao records a purchase and grants points.
func (h *Handler) CreateTransacao(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "failed"
	defer func() { metrics.RecordGrant(status, time.Since(start).Seconds()) }()

	var req TransacaoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}

	claims := ClaimsFromContext(r.Context())
	grant, err := h.Recorder.Record(r.Context(), ledger.GrantInput{
		CPF:        req.CPF,
		Value:      req.Valor,
		Name:       req.Nome,
		OperatorID: claims.UserID,
	})
	if err != nil {
		h.writeDomainError(w, err, map[error]string{
			ledger.ErrInvalidCPF:    "CPF inválido. Por favor, verifique os dados.",
			ledger.ErrInvalidAmount: "CPF e valor (maior que zero) são obrigatórios.",
		})
		return
	}

	status = "success"
	metrics.PointsGranted.Add(float64(grant.Points))
	writeJSON(w, http.StatusCreated, TransacaoResponse{
		Message:      "Transação registrada e pontos computados com sucesso!",
		PontosGanhos: grant.Points,
	})
}

// GetCliente returns a customer's balance.
func (h *Handler) GetCliente(w http.ResponseWriter, r *http.Request) {
	cpf := ledger.CanonicalCPF(chi.URLParam(r, "cpf"))
	if cpf == "" {
		writeError(w, http.StatusBadRequest, "CPF é obrigatório.")
		return
	}

	customer, err := h.Store.CustomerByCPF(r.Context(), cpf)
	if err != nil {
		h.writeInternalError(w, "balance lookup failed", err)
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "Cliente não encontrado.")
		return
	}

	snapshot, err := h.Balance.Balance(r.Context(), customer.ID)
	if err != nil {
		h.writeInternalError(w, "balance computation failed", err)
		return
	}

	dto := ClienteDTO{
		Nome:              customer.Name,
		CPF:               customer.CPF,
		PontosDisponiveis: snapshot.Available,
		PontosPendentes:   snapshot.Pending,
	}
	if snapshot.NextExpiry != nil {
		v := snapshot.NextExpiry.Format(time.RFC3339)
		dto.ProximoVencimento = &v
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetExtrato returns a customer's chronological statement.
func (h *Handler) GetExtrato(w http.ResponseWriter, r *http.Request) {
	cpf := ledger.CanonicalCPF(chi.URLParam(r, "cpf"))

	customer, err := h.Store.CustomerByCPF(r.Context(), cpf)
	if err != nil {
		h.writeInternalError(w, "statement lookup failed", err)
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "Cliente não encontrado.")
		return
	}

	entries, err := h.Store.Statement(r.Context(), customer.ID)
	if err != nil {
		h.writeInternalError(w, "statement query failed", err)
		return
	}

	dtos := make([]ExtratoEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = ExtratoEntryDTO{
			Tipo:      string(e.Kind),
			Pontos:    e.Points,
			Data:      e.At.Format(time.RFC3339),
			Descricao: e.Description,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterCliente handles customer self-registration.
func (h *Handler) RegisterCliente(w http.ResponseWriter, r *http.Request) {
	var req RegistroClienteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}

	customer, err := h.Recorder.Register(r.Context(), ledger.RegisterInput{
		CPF:     req.CPF,
		Name:    req.Nome,
		Consent: req.LGPDConsentimento,
	})
	if err != nil {
		h.writeDomainError(w, err, map[error]string{
			ledger.ErrInvalidCPF:        "CPF inválido. Por favor, verifique os dados.",
			ledger.ErrNameRequired:      "Nome é obrigatório.",
			ledger.ErrConsentRequired:   "Você precisa aceitar os termos para continuar.",
			ledger.ErrAlreadyRegistered: "Este CPF já possui cadastro.",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Cadastro realizado com sucesso!",
		"nome":    customer.Name,
		"cpf":     customer.CPF,
	})
}

// CreateResgate redeems a reward.
func (h *Handler) CreateResgate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "failed"
	defer func() { metrics.RecordRedeem(status, time.Since(start).Seconds()) }()

	var req ResgateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}
	if req.CPF == "" || req.RecompensaID == "" {
		writeError(w, http.StatusBadRequest, "CPF e ID da recompensa são obrigatórios.")
		return
	}

	claims := ClaimsFromContext(r.Context())
	result, err := h.Engine.Redeem(r.Context(), req.CPF, req.RecompensaID, claims.UserID)
	if err != nil {
		// The transaction already rolled back. A missing customer or
		// reward here rejects the redemption attempt rather than
		// addressing a resource, so everything known maps to 400.
		h.writeRejection(w, err, map[error]string{
			ledger.ErrInvalidCPF:         "CPF inválido. Por favor, verifique os dados.",
			ledger.ErrCustomerNotFound:   "Cliente não encontrado.",
			ledger.ErrRewardNotFound:     "Recompensa não encontrada.",
			ledger.ErrInsufficientPoints: "Pontos disponíveis insuficientes.",
		})
		return
	}

	status = "success"
	metrics.PointsRedeemed.Add(float64(result.Cost))
	writeJSON(w, http.StatusOK, ResgateResponse{
		Message:         "Recompensa resgatada com sucesso!",
		PontosRestantes: result.Remaining,
	})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListRecompensas returns the full catalog, including inactive entries.
func (h *Handler) ListRecompensas(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Catalog.List(r.Context(), false)
	if err != nil {
		h.writeInternalError(w, "catalog list failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecompensaDTOs(rewards))
}

// ListRecompensasPublica returns active rewards, cheapest first.
func (h *Handler) ListRecompensasPublica(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Catalog.List(r.Context(), true)
	if err != nil {
		h.writeInternalError(w, "public catalog list failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecompensaDTOs(rewards))
}

// CreateRecompensa adds a reward.
func (h *Handler) CreateRecompensa(w http.ResponseWriter, r *http.Request) {
	var req RecompensaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}

	reward, err := h.Catalog.Create(r.Context(), req.Nome, req.Descricao, req.CustoPontos)
	if err != nil {
		h.writeDomainError(w, err, map[error]string{
			catalog.ErrNameRequired: "Nome da recompensa é obrigatório.",
			catalog.ErrInvalidCost:  "Custo em pontos deve ser maior que zero.",
		})
		return
	}
	writeJSON(w, http.StatusCreated, toRecompensaDTO(*reward))
}

// UpdateRecompensa updates a reward.
func (h *Handler) UpdateRecompensa(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RecompensaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}
	active := true
	if req.Ativo != nil {
		active = *req.Ativo
	}

	reward, err := h.Catalog.Update(r.Context(), id, req.Nome, req.Descricao, req.CustoPontos, active)
	if err != nil {
		h.writeDomainError(w, err, map[error]string{
			catalog.ErrNameRequired:  "Nome da recompensa é obrigatório.",
			catalog.ErrInvalidCost:   "Custo em pontos deve ser maior que zero.",
			ledger.ErrRewardNotFound: "Recompensa não encontrada.",
		})
		return
	}
	writeJSON(w, http.StatusOK, toRecompensaDTO(*reward))
}

// DeleteRecompensa soft-deletes a reward.
func (h *Handler) DeleteRecompensa(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Catalog.Deactivate(r.Context(), id); err != nil {
		h.writeDomainError(w, err, map[error]string{
			ledger.ErrRewardNotFound: "Recompensa não encontrada.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Recompensa desativada."})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// RegisterUsuario creates an operator account.
func (h *Handler) RegisterUsuario(w http.ResponseWriter, r *http.Request) {
	var req RegistroUsuarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}

	user, err := h.Auth.Register(r.Context(), req.Nome, req.Email, req.Senha)
	if err != nil {
		h.writeDomainError(w, err, map[error]string{
			auth.ErrBadCredentials: "Nome e e-mail válidos são obrigatórios.",
			auth.ErrWeakPassword:   "A senha deve ter pelo menos 8 caracteres.",
			auth.ErrEmailTaken:     "Este e-mail já está cadastrado.",
		})
		return
	}

	writeJSON(w, http.StatusCreated, UsuarioDTO{
		ID:    user.ID,
		Nome:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})
}

// LoginUsuario authenticates an operator and issues a token.
func (h *Handler) LoginUsuario(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}

	token, user, err := h.Auth.Login(r.Context(), req.Email, req.Senha)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "E-mail ou senha incorretos.")
			return
		}
		h.writeInternalError(w, "login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Nome: user.Name, Role: user.Role})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetDashboard returns aggregate program figures.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Dashboard(r.Context(), time.Now(), 5)
	if err != nil {
		h.writeInternalError(w, "dashboard query failed", err)
		return
	}

	dto := DashboardDTO{
		Metricas: MetricasDTO{
			TotalClientes:           stats.TotalCustomers,
			TotalPontosDistribuidos: stats.TotalPointsDistributed,
			TotalResgates:           stats.TotalRedemptions,
		},
		TopClientes: make([]TopClienteDTO, len(stats.TopCustomers)),
	}
	for i, c := range stats.TopCustomers {
		dto.TopClientes[i] = TopClienteDTO{Nome: c.Name, CPF: c.CPF, PontosDisponiveis: c.Available}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetAuditoria returns the operator activity log.
func (h *Handler) GetAuditoria(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.AuditLog(r.Context(), 200)
	if err != nil {
		h.writeInternalError(w, "audit query failed", err)
		return
	}

	dtos := make([]AuditoriaEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditoriaEntryDTO{
			Data:         e.At.Format(time.RFC3339),
			NomeOperador: e.OperatorName,
			NomeCliente:  e.CustomerName,
			Acao:         e.Action,
			Pontos:       e.Points,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps known business errors to 4xx with their
// user-facing message; anything else becomes a logged 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, messages map[error]string) {
	for sentinel, msg := range messages {
		if errors.Is(err, sentinel) {
			writeError(w, statusFor(sentinel), msg)
			return
		}
	}
	h.writeInternalError(w, "request failed", err)
}

// writeRejection maps known business errors to 400 regardless of their
// lookup semantics. Used for transactional operations, where the whole
// attempt was refused; pure lookups keep their 404s via writeDomainError.
func (h *Handler) writeRejection(w http.ResponseWriter, err error, messages map[error]string) {
	for sentinel, msg := range messages {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
	}
	h.writeInternalError(w, "request failed", err)
}

func statusFor(sentinel error) int {
	switch {
	case ledger.IsNotFound(sentinel):
		return http.StatusNotFound
	case ledger.IsConflict(sentinel) || errors.Is(sentinel, auth.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// writeInternalError logs the real error and returns a generic message.
// Internal detail never reaches the client.
func (h *Handler) writeInternalError(w http.ResponseWriter, msg string, err error) {
	h.Log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Ocorreu um erro no servidor.")
}

func toRecompensaDTO(r ledger.Reward) RecompensaDTO {
	return RecompensaDTO{
		ID:          r.ID,
		Nome:        r.Name,
		Descricao:   r.Description,
		CustoPontos: r.Cost,
		Ativo:       r.Active,
	}
}

func toRecompensaDTOs(rewards []ledger.Reward) []RecompensaDTO {
	dtos := make([]RecompensaDTO, len(rewards))
	for i, r := range rewards {
		dtos[i] = toRecompensaDTO(r)
	}
	return dtos
}
