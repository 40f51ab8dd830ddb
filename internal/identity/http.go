package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HTTPResolver resolves identities against a remote identity service:
// GET {base}/users/{id}/role returning {"user_id": ..., "role": ..., "group": ...}.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPResolver creates an HTTPResolver. timeout bounds each lookup;
// zero means 5 seconds.
func NewHTTPResolver(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPResolver {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Resolve implements Resolver. Any failure — network, status, decoding,
// unknown role — collapses into ErrUnavailable.
func (r *HTTPResolver) Resolve(ctx context.Context, userID string) (*Identity, error) {
	u := fmt.Sprintf("%s/users/%s/role", r.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("identity lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("identity lookup non-OK",
			zap.String("user_id", userID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if id.Role != RoleAdmin && id.Role != RoleUser {
		return nil, fmt.Errorf("%w: unknown role %q", ErrUnavailable, id.Role)
	}
	id.UserID = userID
	return &id, nil
}
