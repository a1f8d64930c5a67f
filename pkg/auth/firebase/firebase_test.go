package firebase

import (
	"context"
	"errors"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

type fakeAuthClient struct {
	tokens   map[string]*fbauth.Token
	claims   map[string]map[string]interface{}
	setCalls int
	getErr   error
	setErr   error
}

func (f *fakeAuthClient) VerifyIDToken(_ context.Context, idToken string) (*fbauth.Token, error) {
	tok, ok := f.tokens[idToken]
	if !ok {
		return nil, errors.New("ID token has invalid signature")
	}
	return tok, nil
}

func (f *fakeAuthClient) GetUser(_ context.Context, uid string) (*fbauth.UserRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &fbauth.UserRecord{CustomClaims: f.claims[uid]}, nil
}

func (f *fakeAuthClient) SetCustomUserClaims(_ context.Context, uid string, claims map[string]interface{}) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.claims[uid] = claims
	return nil
}

func newFake() *fakeAuthClient {
	return &fakeAuthClient{
		tokens: map[string]*fbauth.Token{
			"good": {UID: "uid-1", Claims: map[string]interface{}{"plan": "pro"}},
			"free": {UID: "uid-2", Claims: map[string]interface{}{}},
			"anon": {UID: ""},
		},
		claims: map[string]map[string]interface{}{
			"uid-1": {"admin": true},
		},
	}
}

func TestProvider_Verify(t *testing.T) {
	p := &Provider{client: newFake()}
	ctx := context.Background()

	id, err := p.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.UserID)
	assert.Equal(t, quota.PlanPro, id.ClaimedPlan)

	id, err = p.Verify(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, quota.PlanFree, id.ClaimedPlan)

	_, err = p.Verify(ctx, "forged")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = p.Verify(ctx, "anon")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestProvider_SetPlanClaim(t *testing.T) {
	fake := newFake()
	p := &Provider{client: fake}
	ctx := context.Background()

	require.NoError(t, p.SetPlanClaim(ctx, "uid-1", quota.PlanPro))
	assert.Equal(t, "pro", fake.claims["uid-1"]["plan"])
	assert.Equal(t, true, fake.claims["uid-1"]["admin"])
	assert.Equal(t, 1, fake.setCalls)

	// Same value again is a no-op
	require.NoError(t, p.SetPlanClaim(ctx, "uid-1", quota.PlanPro))
	assert.Equal(t, 1, fake.setCalls)

	require.NoError(t, p.SetPlanClaim(ctx, "uid-1", quota.PlanFree))
	assert.Equal(t, "free", fake.claims["uid-1"]["plan"])
}

func TestProvider_SetPlanClaimErrors(t *testing.T) {
	fake := newFake()
	fake.getErr = errors.New("user not found")
	p := &Provider{client: fake}
	assert.Error(t, p.SetPlanClaim(context.Background(), "uid-x", quota.PlanPro))

	fake = newFake()
	fake.setErr = errors.New("quota exceeded")
	p = &Provider{client: fake}
	assert.Error(t, p.SetPlanClaim(context.Background(), "uid-1", quota.PlanPro))
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
