package rpc

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingvault/internal/token"
	"github.com/Klingon-tech/klingvault/internal/vault"
	"github.com/Klingon-tech/klingvault/pkg/types"
)

// toError maps a backend error onto a JSON-RPC error. Vault errors use
// their kind; token ledger rule violations share one code.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var ve *vault.Error
	if errors.As(err, &ve) {
		code := CodeInternalError
		switch ve.Kind {
		case vault.KindValidation:
			code = CodeValidation
		case vault.KindState:
			code = CodeState
		case vault.KindAuthorization:
			code = CodeUnauthorized
		case vault.KindCustody:
			code = CodeCustody
		}
		return &Error{Code: code, Message: err.Error(), Data: ve.Kind.String()}
	}
	if token.IsTokenError(err) {
		return &Error{Code: CodeTokenRule, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func invalidParams(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// parseAddress decodes a required address parameter.
func parseAddress(s, field string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, invalidParams("%s is required", field)
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, invalidParams("invalid %s: %v", field, err)
	}
	return addr, nil
}
