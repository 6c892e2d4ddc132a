package account

// TokenData holds the OAuth credentials bound to an account.
type TokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Email        string `json:"email,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
}

// ModelQuota is the usage/limit pair for one upstream model.
type ModelQuota struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// QuotaData is the last known usage/limit snapshot for an account, including
// the per-model breakdown when the endpoint reports one.
type QuotaData struct {
	Used      int64                 `json:"used"`
	Limit     int64                 `json:"limit"`
	ResetAt   int64                 `json:"reset_at,omitempty"`
	Models    map[string]ModelQuota `json:"models,omitempty"`
	UpdatedAt int64                 `json:"updated_at"`
}

// Account is one managed backend account, persisted as a JSON file.
type Account struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Token               TokenData  `json:"token"`
	Quota               *QuotaData `json:"quota,omitempty"`
	SortIndex           int        `json:"sort_index"`
	ProxyDisabled       bool       `json:"proxy_disabled"`
	ProxyDisabledReason string     `json:"proxy_disabled_reason,omitempty"`
	ProxyDisabledAt     int64      `json:"proxy_disabled_at,omitempty"`
	CreatedAt           int64      `json:"created_at"`
	UpdatedAt           int64      `json:"updated_at"`
}
