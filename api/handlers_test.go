package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fidelium/pontos/api"
	"github.com/fidelium/pontos/auth"
	"github.com/fidelium/pontos/ledger"
	"github.com/fidelium/pontos/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testCPF = "52998224725"

// plainHasher keeps the handler tests off bcrypt's work factor.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "plain:" + pw, nil }
func (plainHasher) Verify(hash, pw string) bool    { return hash == "plain:"+pw }

func newTestRouter(t *testing.T) (*chi.Mux, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authSvc := auth.NewService(store, []byte("test-secret"), time.Hour)
	authSvc.Hasher = plainHasher{}

	recorder := ledger.NewGrantRecorder(store, ledger.Days(0, 180))
	engine := ledger.NewRedemptionEngine(store)
	h := api.NewHandler(store, recorder, engine, authSvc, zap.NewNop())

	router := api.NewRouter(h, api.RouterOptions{
		AllowedOrigins: []string{"*"},
		PublicRPS:      1000,
		PublicBurst:    1000,
	})
	return router, store
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

// registerAndLogin creates an operator account and returns its token.
// The first call on a fresh store yields an admin.
func registerAndLogin(t *testing.T, router http.Handler, name, email string) string {
	rec := doJSON(t, router, http.MethodPost, "/usuarios/registro", "", map[string]string{
		"nome": name, "email": email, "senha": "senhaforte",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/usuarios/login", "", map[string]string{
		"email": email, "senha": "senhaforte",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[api.LoginResponse](t, rec).Token
}

func createReward(t *testing.T, router http.Handler, adminToken, name string, cost int64) string {
	rec := doJSON(t, router, http.MethodPost, "/recompensas", adminToken, map[string]any{
		"nome": name, "custo_pontos": cost,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.RecompensaDTO](t, rec).ID
}

// =============================================================================
// FULL FLOW
// =============================================================================

func TestFullFlow_GrantThenRedeem(t *testing.T) {
	// Register an admin, record two purchases, redeem a reward, and
	// check the balance and statement along the way.

	router, _ := newTestRouter(t)
	admin := registerAndLogin(t, router, "Ana", "ana@loja.com")
	rewardID := createReward(t, router, admin, "Caneca", 60)

	// Two purchases: 60.90 -> 60 points, 40.00 -> 40 points
	rec := doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": "529.982.247-25", "valor": "60.90", "nome": "João",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(60), decode[api.TransacaoResponse](t, rec).PontosGanhos)

	rec = doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": testCPF, "valor": "40.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Balance before redemption
	rec = doJSON(t, router, http.MethodGet, "/clientes/"+testCPF, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cliente := decode[api.ClienteDTO](t, rec)
	assert.Equal(t, "João", cliente.Nome)
	assert.Equal(t, int64(100), cliente.PontosDisponiveis)
	assert.Zero(t, cliente.PontosPendentes)
	require.NotNil(t, cliente.ProximoVencimento)

	// Redeem: the 60-point grant covers the cost exactly
	rec = doJSON(t, router, http.MethodPost, "/resgates", admin, map[string]string{
		"cpf": testCPF, "recompensa_id": rewardID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(40), decode[api.ResgateResponse](t, rec).PontosRestantes)

	rec = doJSON(t, router, http.MethodGet, "/clientes/"+testCPF, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(40), decode[api.ClienteDTO](t, rec).PontosDisponiveis)

	// Statement: credit, credit, debit
	rec = doJSON(t, router, http.MethodGet, "/clientes/"+testCPF+"/extrato", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]api.ExtratoEntryDTO](t, rec)
	require.Len(t, entries, 3)
	assert.Equal(t, "credito", entries[0].Tipo)
	assert.Equal(t, "Compra de R$ 60.90", entries[0].Descricao)
	assert.Equal(t, "credito", entries[1].Tipo)
	assert.Equal(t, "debito", entries[2].Tipo)
	assert.Equal(t, "Resgate: Caneca", entries[2].Descricao)
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

func TestCreateTransacao_InvalidInput(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := registerAndLogin(t, router, "Ana", "ana@loja.com")

	rec := doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": "11111111111", "valor": "10.00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, rec).Error, "CPF inválido")

	rec = doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": testCPF, "valor": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCliente_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/clientes/11144477735", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Cliente não encontrado.", decode[api.ErrorResponse](t, rec).Error)
}

func TestRegisterCliente(t *testing.T) {
	router, _ := newTestRouter(t)

	// Missing consent
	rec := doJSON(t, router, http.MethodPost, "/clientes/registro", "", map[string]any{
		"cpf": testCPF, "nome": "João", "lgpd_consentimento": false,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/clientes/registro", "", map[string]any{
		"cpf": testCPF, "nome": "João", "lgpd_consentimento": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Same CPF again conflicts
	rec = doJSON(t, router, http.MethodPost, "/clientes/registro", "", map[string]any{
		"cpf": testCPF, "nome": "Pedro", "lgpd_consentimento": true,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Este CPF já possui cadastro.", decode[api.ErrorResponse](t, rec).Error)
}

func TestCreateResgate_DomainFailures(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := registerAndLogin(t, router, "Ana", "ana@loja.com")
	rewardID := createReward(t, router, admin, "Fone", 500)

	// Unknown customer: the redemption attempt is refused as a whole,
	// so this is a 400 business rejection, unlike the 404 on lookups.
	rec := doJSON(t, router, http.MethodPost, "/resgates", admin, map[string]string{
		"cpf": testCPF, "recompensa_id": rewardID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cliente não encontrado.", decode[api.ErrorResponse](t, rec).Error)

	// Known customer, not enough points
	rec = doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": testCPF, "valor": "100.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/resgates", admin, map[string]string{
		"cpf": testCPF, "recompensa_id": rewardID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Pontos disponíveis insuficientes.", decode[api.ErrorResponse](t, rec).Error)

	// Unknown reward
	rec = doJSON(t, router, http.MethodPost, "/resgates", admin, map[string]string{
		"cpf": testCPF, "recompensa_id": "missing",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Recompensa não encontrada.", decode[api.ErrorResponse](t, rec).Error)
}

// =============================================================================
// AUTHENTICATION AND AUTHORIZATION
// =============================================================================

func TestAuth_TokenGating(t *testing.T) {
	router, _ := newTestRouter(t)

	// No token
	rec := doJSON(t, router, http.MethodPost, "/resgates", "", map[string]string{
		"cpf": testCPF, "recompensa_id": "x",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token de acesso não fornecido.", decode[api.ErrorResponse](t, rec).Error)

	// Garbage token
	rec = doJSON(t, router, http.MethodPost, "/resgates", "garbage", map[string]string{
		"cpf": testCPF, "recompensa_id": "x",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Token inválido ou expirado.", decode[api.ErrorResponse](t, rec).Error)
}

func TestAuth_AdminGating(t *testing.T) {
	// The first account is admin, the second a plain operador. Only the
	// admin may record transactions and manage the catalog; the
	// operador can still redeem.

	router, _ := newTestRouter(t)
	admin := registerAndLogin(t, router, "Ana", "ana@loja.com")
	operador := registerAndLogin(t, router, "Bruno", "bruno@loja.com")

	rec := doJSON(t, router, http.MethodPost, "/transacoes", operador, map[string]any{
		"cpf": testCPF, "valor": "10.00",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Acesso restrito a administradores.", decode[api.ErrorResponse](t, rec).Error)

	rec = doJSON(t, router, http.MethodGet, "/dashboard/stats", operador, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Operador-accessible surface
	rewardID := createReward(t, router, admin, "Caneca", 10)
	rec = doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": testCPF, "valor": "50.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/resgates", operador, map[string]string{
		"cpf": testCPF, "recompensa_id": rewardID,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/recompensas", operador, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUsuarios_RegistrationAndLoginFailures(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/usuarios/registro", "", map[string]string{
		"nome": "Ana", "email": "ana@loja.com", "senha": "curta",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/usuarios/registro", "", map[string]string{
		"nome": "Ana", "email": "ana@loja.com", "senha": "senhaforte",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, auth.RoleAdmin, decode[api.UsuarioDTO](t, rec).Role)

	rec = doJSON(t, router, http.MethodPost, "/usuarios/registro", "", map[string]string{
		"nome": "Outra", "email": "ana@loja.com", "senha": "senhaforte",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/usuarios/login", "", map[string]string{
		"email": "ana@loja.com", "senha": "errada12",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "E-mail ou senha incorretos.", decode[api.ErrorResponse](t, rec).Error)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestRecompensas_PublicListHidesInactive(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := registerAndLogin(t, router, "Ana", "ana@loja.com")

	keptID := createReward(t, router, admin, "Caneca", 50)
	goneID := createReward(t, router, admin, "Fone", 500)

	rec := doJSON(t, router, http.MethodDelete, "/recompensas/"+goneID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Public view: only the active reward, no token needed
	rec = doJSON(t, router, http.MethodGet, "/recompensas/publica", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	public := decode[[]api.RecompensaDTO](t, rec)
	require.Len(t, public, 1)
	assert.Equal(t, keptID, public[0].ID)

	// Operator view keeps both
	rec = doJSON(t, router, http.MethodGet, "/recompensas", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.RecompensaDTO](t, rec), 2)
}

func TestRecompensas_UpdateAndValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := registerAndLogin(t, router, "Ana", "ana@loja.com")
	id := createReward(t, router, admin, "Caneca", 50)

	rec := doJSON(t, router, http.MethodPut, "/recompensas/"+id, admin, map[string]any{
		"nome": "Caneca grande", "custo_pontos": 80,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[api.RecompensaDTO](t, rec)
	assert.Equal(t, int64(80), updated.CustoPontos)
	assert.True(t, updated.Ativo, "omitted ativo defaults to active")

	rec = doJSON(t, router, http.MethodPut, "/recompensas/missing", admin, map[string]any{
		"nome": "X", "custo_pontos": 10,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/recompensas", admin, map[string]any{
		"nome": "", "custo_pontos": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/recompensas", admin, map[string]any{
		"nome": "Caneca", "custo_pontos": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN VIEWS
// =============================================================================

func TestDashboardAndAuditoria(t *testing.T) {
	// Grants of 60 and 40; redeeming a 50-cost reward consumes the 60
	// whole, so 40 points remain available for the ranking.

	router, _ := newTestRouter(t)
	admin := registerAndLogin(t, router, "Ana", "ana@loja.com")
	rewardID := createReward(t, router, admin, "Caneca", 50)

	rec := doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": testCPF, "valor": "60.00", "nome": "João",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/transacoes", admin, map[string]any{
		"cpf": testCPF, "valor": "40.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/resgates", admin, map[string]string{
		"cpf": testCPF, "recompensa_id": rewardID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/dashboard/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[api.DashboardDTO](t, rec)
	assert.Equal(t, int64(1), dash.Metricas.TotalClientes)
	assert.Equal(t, int64(100), dash.Metricas.TotalPontosDistribuidos)
	assert.Equal(t, int64(1), dash.Metricas.TotalResgates)
	require.Len(t, dash.TopClientes, 1)
	assert.Equal(t, "João", dash.TopClientes[0].Nome)
	assert.Equal(t, int64(40), dash.TopClientes[0].PontosDisponiveis,
		"consumed grant left the ranking; the untouched one remains")

	rec = doJSON(t, router, http.MethodGet, "/admin/auditoria", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decode[[]api.AuditoriaEntryDTO](t, rec)
	require.Len(t, audit, 3)
	assert.Equal(t, "Resgate de recompensa", audit[0].Acao)
	assert.Equal(t, int64(-50), audit[0].Pontos)
	assert.Equal(t, "Ana", audit[0].NomeOperador)
	assert.Equal(t, "Lançamento de pontos", audit[1].Acao)
	assert.Equal(t, int64(40), audit[1].Pontos)
	assert.Equal(t, "Lançamento de pontos", audit[2].Acao)
	assert.Equal(t, int64(60), audit[2].Pontos)
}

// =============================================================================
// OPERATIONAL
// =============================================================================

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_PublicEndpoints(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authSvc := auth.NewService(store, []byte("test-secret"), time.Hour)
	recorder := ledger.NewGrantRecorder(store, ledger.Days(0, 180))
	engine := ledger.NewRedemptionEngine(store)
	h := api.NewHandler(store, recorder, engine, authSvc, zap.NewNop())
	router := api.NewRouter(h, api.RouterOptions{
		AllowedOrigins: []string{"*"},
		PublicRPS:      1,
		PublicBurst:    2,
	})

	var last int
	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/clientes/%s", testCPF), "", nil)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last, "third request exceeds the burst")

	// A different client address has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/clientes/"+testCPF, nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
