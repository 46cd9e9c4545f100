package auth

import "github.com/baechuer/storefront-auth/internal/domain"

func domainCode(err error) string {
	if err == nil {
		return ""
	}
	if c := domain.CodeOf(err); c != "" {
		return c
	}
	return "non_domain_error"
}

type auditFunc func(result string, err error, extra map[string]string)

// auditFor binds actor and target so each admin use case records one entry
// per outcome.
func (s *Service) auditFor(action string, actor domain.Principal, targetID string) auditFunc {
	return func(result string, err error, extra map[string]string) {
		fields := map[string]string{
			"actor_id":   actor.UserID,
			"actor_role": string(actor.Role),
			"target_id":  targetID,
			"result":     result,
		}
		if err != nil {
			fields["error_code"] = domainCode(err)
		}
		for k, v := range extra {
			fields[k] = v
		}
		s.audit(action, fields)
	}
}

// fail records err and returns it, so call sites stay one line.
func (a auditFunc) fail(err error) error {
	a("error", err, nil)
	return err
}
