package executor

import (
	"errors"
	"strings"

	"github.com/verikit/verikit/types"
)

// Keyword heuristics for error classification. Best-effort for reporting,
// not a strict contract: the first matching bucket wins.
var classifierRules = []struct {
	errType  types.ErrorType
	keywords []string
}{
	{types.ErrorTypePerformance, []string{"timeout", "timed out", "deadline exceeded", "too slow", "latency"}},
	{types.ErrorTypeAuthentication, []string{"401", "403", "unauthorized", "forbidden", "authentication", "credential", "token expired", "api key"}},
	{types.ErrorTypeSchema, []string{"schema", "database", "sql", "column", "migration", "field type"}},
	{types.ErrorTypeSecurity, []string{"security", "injection", "xss", "csrf", "vulnerab", "certificate"}},
	{types.ErrorTypeDataIntegrity, []string{"integrity", "checksum", "corrupt", "inconsistent", "mismatch"}},
	{types.ErrorTypeNetwork, []string{"network", "connection", "refused", "dns", "dial", "socket", "unreachable", "reset by peer", "eof"}},
	{types.ErrorTypeValidation, []string{"validation", "invalid", "malformed", "400", "bad request", "missing field", "unexpected status"}},
}

// CategorizeError maps an error's message onto the reporting taxonomy using
// substring heuristics (e.g. "timeout" -> performance, "401" -> authentication,
// "schema" -> schema). Unrecognized errors are classified as unknown.
func CategorizeError(err error) types.ErrorType {
	if err == nil {
		return types.ErrorTypeUnknown
	}
	var verr *types.VerificationError
	if errors.As(err, &verr) {
		return verr.Type
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.errType
			}
		}
	}
	return types.ErrorTypeUnknown
}

// toVerificationError wraps an arbitrary error into the typed taxonomy,
// preserving an existing VerificationError untouched.
func toVerificationError(err error) *types.VerificationError {
	if err == nil {
		return nil
	}
	var verr *types.VerificationError
	if errors.As(err, &verr) {
		return verr
	}
	return &types.VerificationError{
		Type:    CategorizeError(err),
		Message: err.Error(),
	}
}
