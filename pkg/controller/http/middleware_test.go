package http_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	httpctrl "github.com/yata-dev/yata-server/pkg/controller/http"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
	"github.com/yata-dev/yata-server/pkg/repository/memory"
	"github.com/yata-dev/yata-server/pkg/usecase"
)

const testKeyID = "test-key-1"

// testKeyPair generates a signing key and the matching public key provider
func testKeyPair(t *testing.T) (jwk.Key, interfaces.KeyProvider) {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	gt.NoError(t, err).Required()

	priv, err := jwk.FromRaw(raw)
	gt.NoError(t, err).Required()
	gt.NoError(t, priv.Set(jwk.KeyIDKey, testKeyID)).Required()
	gt.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256)).Required()

	pub, err := priv.PublicKey()
	gt.NoError(t, err).Required()

	return priv, &staticKeyProvider{keys: map[string]jwk.Key{testKeyID: pub}}
}

type staticKeyProvider struct {
	keys map[string]jwk.Key
}

func (p *staticKeyProvider) Get(ctx context.Context, keyID string) (jwk.Key, error) {
	key, ok := p.keys[keyID]
	if !ok {
		return nil, goerr.New("no such key", goerr.V("keyID", keyID))
	}
	return key, nil
}

type tokenOption func(*jwt.Builder) *jwt.Builder

func withOrganization(orgID, slug, role string, permissions []string) tokenOption {
	return func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("org_id", orgID).
			Claim("org_slug", slug).
			Claim("org_role", role).
			Claim("org_permissions", permissions)
	}
}

func withExpiry(exp time.Time) tokenOption {
	return func(b *jwt.Builder) *jwt.Builder {
		return b.Expiration(exp)
	}
}

// mintToken signs a session token for testing
func mintToken(t *testing.T, priv jwk.Key, subject string, opts ...tokenOption) string {
	t.Helper()

	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	for _, opt := range opts {
		builder = opt(builder)
	}

	token, err := builder.Build()
	gt.NoError(t, err).Required()

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, priv))
	gt.NoError(t, err).Required()

	return string(signed)
}

type fakeProfileAPI struct {
	profiles map[types.SubjectID]*model.Profile
}

func (f *fakeProfileAPI) FetchProfile(ctx context.Context, subject types.SubjectID) (*model.Profile, error) {
	profile, ok := f.profiles[subject]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrProfileNotFound, "no such account", goerr.V("subjectID", subject))
	}
	return profile, nil
}

func setupAPIServer(t *testing.T) (jwk.Key, *memory.Repository, *fakeProfileAPI, *httpctrl.Server) {
	t.Helper()

	priv, keys := testKeyPair(t)
	repo := memory.New()
	profiles := &fakeProfileAPI{profiles: map[types.SubjectID]*model.Profile{}}

	uc := usecase.New(repo,
		usecase.WithKeyProvider(keys),
		usecase.WithProfileAPI(profiles),
	)

	srv, err := httpctrl.New(uc)
	gt.NoError(t, err).Required()

	return priv, repo, profiles, srv
}

func seedUser(t *testing.T, repo *memory.Repository, subject types.SubjectID, email string) {
	t.Helper()

	_, err := repo.User().Update(context.Background(), subject, func(current *model.User) (*model.User, error) {
		now := time.Now()
		return &model.User{
			SubjectID:   subject,
			Email:       email,
			DisplayName: "Seeded User",
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
	gt.NoError(t, err).Required()
}

func TestAuthMiddleware(t *testing.T) {
	priv, repo, _, srv := setupAPIServer(t)
	seedUser(t, repo, "user_1", "one@example.com")

	t.Run("missing bearer token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})

	t.Run("malformed token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token := mintToken(t, priv, "user_1", withExpiry(time.Now().Add(-time.Hour)))

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})

	t.Run("valid token resolves identity", func(t *testing.T) {
		token := mintToken(t, priv, "user_1")

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			User model.User `json:"user"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.User.Email).Equal("one@example.com")
	})

	t.Run("error body does not leak verification detail", func(t *testing.T) {
		token := mintToken(t, priv, "user_1", withExpiry(time.Now().Add(-time.Hour)))

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Body.String()).Equal("unauthenticated\n")
	})
}

func TestRequireOrganization(t *testing.T) {
	priv, repo, _, srv := setupAPIServer(t)
	seedUser(t, repo, "user_org", "org@example.com")

	t.Run("session without organization is forbidden", func(t *testing.T) {
		token := mintToken(t, priv, "user_org")

		req := httptest.NewRequest(http.MethodGet, "/api/org/members", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusForbidden)
	})

	t.Run("session with organization lists members", func(t *testing.T) {
		token := mintToken(t, priv, "user_org",
			withOrganization("org_1", "acme", "admin", []string{"members:read"}))

		req := httptest.NewRequest(http.MethodGet, "/api/org/members", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Members []model.User `json:"members"`
			Count   int          `json:"count"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.Count).Equal(1)
		gt.Value(t, resp.Members[0].Email).Equal("org@example.com")
	})
}

func TestResolveIdentity(t *testing.T) {
	t.Run("missing local record is repaired from the provider", func(t *testing.T) {
		priv, repo, profiles, srv := setupAPIServer(t)
		profiles.profiles["user_jit"] = &model.Profile{
			Email:       "jit@example.com",
			DisplayName: "JIT User",
		}

		token := mintToken(t, priv, "user_jit")

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusOK)

		user, err := repo.User().GetActive(context.Background(), "user_jit")
		gt.NoError(t, err).Required()
		gt.Value(t, user.Email).Equal("jit@example.com")
	})

	t.Run("unknown subject at the provider is unauthenticated", func(t *testing.T) {
		priv, _, _, srv := setupAPIServer(t)

		token := mintToken(t, priv, "user_ghost")

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})

	t.Run("tombstoned subject is unauthenticated without a provider call", func(t *testing.T) {
		priv, repo, profiles, srv := setupAPIServer(t)
		seedUser(t, repo, "user_gone", "gone@example.com")

		uc := usecase.New(repo, usecase.WithProfileAPI(profiles))
		_, err := uc.Sync.Apply(context.Background(), "user_gone", model.OpDelete, nil)
		gt.NoError(t, err).Required()

		// Provider still has the account, but the tombstone wins
		profiles.profiles["user_gone"] = &model.Profile{Email: "gone@example.com"}

		token := mintToken(t, priv, "user_gone")

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})
}
