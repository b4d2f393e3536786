package service

import (
	"errors"
	"fmt"

	"loyalty-hub/internal/repository"
)

// Error kinds. Every error returned by the ledger services matches exactly one
// of these with errors.Is, which is what the HTTP layer maps to a status code.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrStateConflict       = errors.New("state conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrForbidden           = errors.New("forbidden")
)

// RejectionError is an expected business outcome. Reason is safe to show to
// the end user; Code is a stable machine-readable identifier.
type RejectionError struct {
	Kind   error
	Code   string
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Code + ": " + e.Reason
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

func reject(kind error, code, reason string) *RejectionError {
	return &RejectionError{Kind: kind, Code: code, Reason: reason}
}

var (
	ErrInvalidUserID  = reject(ErrValidation, "invalid_user_id", "Usuário inválido")
	ErrInvalidPage    = reject(ErrValidation, "invalid_page", "Paginação inválida")
	ErrForbiddenActor = reject(ErrForbidden, "forbidden", "Operação não permitida")

	ErrInsufficientPoints     = reject(ErrInsufficientBalance, "insufficient_points", "Pontos insuficientes")
	ErrTierTooLow             = reject(ErrStateConflict, "tier_too_low", "Nível de fidelidade insuficiente para esta recompensa")
	ErrRewardNotFound         = reject(ErrNotFound, "reward_not_found", "Recompensa não encontrada")
	ErrRewardUnavailable      = reject(ErrStateConflict, "reward_unavailable", "Recompensa indisponível")
	ErrMaxRedemptionsExceeded = reject(ErrStateConflict, "max_redemptions_exceeded", "Limite de resgates atingido para esta recompensa")
	ErrRedemptionNotFound     = reject(ErrNotFound, "redemption_not_found", "Cupom não encontrado")
	ErrRedemptionNotActive    = reject(ErrStateConflict, "redemption_not_active", "Cupom já utilizado ou expirado")
	ErrAccountNotFound        = reject(ErrNotFound, "account_not_found", "Conta de pontos não encontrada")

	ErrReferralCodeNotFound  = reject(ErrNotFound, "referral_code_not_found", "Código de indicação inválido")
	ErrReferralCodeInactive  = reject(ErrStateConflict, "referral_code_inactive", "Código de indicação inativo")
	ErrReferralCodeExhausted = reject(ErrStateConflict, "referral_code_exhausted", "Código de indicação esgotado")
	ErrReferralCodeExpired   = reject(ErrStateConflict, "referral_code_expired", "Código expirado")
	ErrDuplicateActiveCode   = reject(ErrStateConflict, "duplicate_active_code", "Você já possui um código de indicação ativo")
	ErrReferralCodeTaken     = reject(ErrStateConflict, "referral_code_taken", "Este código já está em uso")
	ErrSelfReferral          = reject(ErrValidation, "self_referral", "Não é possível usar o próprio código de indicação")
	ErrAlreadyReferred       = reject(ErrStateConflict, "already_referred", "Usuário já foi indicado")
	ErrReferralNotFound      = reject(ErrNotFound, "referral_not_found", "Indicação não encontrada")
	ErrReferralNotPending    = reject(ErrStateConflict, "referral_not_pending", "Indicação não está pendente")

	ErrPayoutBelowMinimum      = reject(ErrValidation, "payout_below_minimum", "Valor abaixo do mínimo para saque")
	ErrInsufficientCashback    = reject(ErrInsufficientBalance, "insufficient_cashback", "Saldo de cashback insuficiente")
	ErrPayoutNotFound          = reject(ErrNotFound, "payout_not_found", "Solicitação de saque não encontrada")
	ErrPayoutInvalidTransition = reject(ErrStateConflict, "payout_invalid_transition", "Transição de status inválida")

	ErrPromoCodeNotFound = reject(ErrNotFound, "promo_code_not_found", "Código promocional inválido")
	ErrPromoCodeExists   = reject(ErrStateConflict, "promo_code_exists", "Código promocional já existe")
	ErrPromoCodeRejected = reject(ErrStateConflict, "promo_code_rejected", "Código promocional não pode ser aplicado")
)

func validationError(reason string) error {
	return reject(ErrValidation, "validation", reason)
}

// Reason returns the user-facing message carried by err, or a generic one.
func Reason(err error) string {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	switch {
	case errors.Is(err, ErrConcurrencyConflict):
		return "Operação concorrente detectada, tente novamente"
	case errors.Is(err, ErrStoreUnavailable):
		return "Serviço temporariamente indisponível"
	default:
		return "Erro interno"
	}
}

// Code returns the machine-readable code carried by err, if any.
func Code(err error) string {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Code
	}
	return ""
}

func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	case errors.Is(err, repository.ErrSerialization):
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}
