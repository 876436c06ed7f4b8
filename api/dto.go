/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP surface. Field names follow the
  program's public contract (Portuguese, mixed camel/snake exactly as
  the consuming frontend expects); internal domain types never leak
  their shape into responses.

NAMING CONVENTION:
  - *DTO: response types
  - *Request: request body types
*/
package api

import "github.com/shopspring/decimal"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// LEDGER
// =============================================================================

// TransacaoRequest records a purchase for a customer.
type TransacaoRequest struct {
	CPF   string          `json:"cpf"`
	Valor decimal.Decimal `json:"valor"`
	Nome  string          `json:"nome,omitempty"`
}

// TransacaoResponse confirms a recorded grant.
type TransacaoResponse struct {
	Message      string `json:"message"`
	PontosGanhos int64  `json:"pontosGanhos"`
}

// ClienteDTO is the balance view of a customer.
type ClienteDTO struct {
	Nome              string  `json:"nome"`
	CPF               string  `json:"cpf"`
	PontosDisponiveis int64   `json:"pontosDisponiveis"`
	PontosPendentes   int64   `json:"pontosPendentes"`
	ProximoVencimento *string `json:"proximoVencimento"`
}

// ExtratoEntryDTO is one statement line.
type ExtratoEntryDTO struct {
	Tipo      string `json:"tipo"` // "credito" | "debito"
	Pontos    int64  `json:"pontos"`
	Data      string `json:"data"`
	Descricao string `json:"descricao"`
}

// RegistroClienteRequest is a customer self-registration.
type RegistroClienteRequest struct {
	CPF               string `json:"cpf"`
	Nome              string `json:"nome"`
	LGPDConsentimento bool   `json:"lgpd_consentimento"`
}

// ResgateRequest redeems a reward for a customer.
type ResgateRequest struct {
	CPF          string `json:"cpf"`
	RecompensaID string `json:"recompensa_id"`
}

// ResgateResponse confirms a redemption.
type ResgateResponse struct {
	Message         string `json:"message"`
	PontosRestantes int64  `json:"pontos_restantes"`
}

// =============================================================================
// CATALOG
// =============================================================================

// RecompensaDTO is a catalog entry.
type RecompensaDTO struct {
	ID          string `json:"id"`
	Nome        string `json:"nome"`
	Descricao   string `json:"descricao"`
	CustoPontos int64  `json:"custo_pontos"`
	Ativo       bool   `json:"ativo"`
}

// RecompensaRequest creates or updates a catalog entry.
type RecompensaRequest struct {
	Nome        string `json:"nome"`
	Descricao   string `json:"descricao"`
	CustoPontos int64  `json:"custo_pontos"`
	Ativo       *bool  `json:"ativo,omitempty"` // nil on create means active
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// RegistroUsuarioRequest creates an operator account.
type RegistroUsuarioRequest struct {
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// LoginRequest authenticates an operator.
type LoginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token string `json:"token"`
	Nome  string `json:"nome"`
	Role  string `json:"role"`
}

// UsuarioDTO is an operator account view.
type UsuarioDTO struct {
	ID    string `json:"id"`
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// =============================================================================
// ADMIN VIEWS
// =============================================================================

// DashboardDTO aggregates program-wide figures.
type DashboardDTO struct {
	Metricas    MetricasDTO     `json:"metricas"`
	TopClientes []TopClienteDTO `json:"topClientes"`
}

type MetricasDTO struct {
	TotalClientes           int64 `json:"total_clientes"`
	TotalPontosDistribuidos int64 `json:"total_pontos_distribuidos"`
	TotalResgates           int64 `json:"total_resgates"`
}

type TopClienteDTO struct {
	Nome              string `json:"nome"`
	CPF               string `json:"cpf"`
	PontosDisponiveis int64  `json:"pontos_disponiveis"`
}

// AuditoriaEntryDTO is one operator-activity line.
type AuditoriaEntryDTO struct {
	Data         string `json:"data"`
	NomeOperador string `json:"nome_operador"`
	NomeCliente  string `json:"nome_cliente"`
	Acao         string `json:"acao"`
	Pontos       int64  `json:"pontos"`
}
