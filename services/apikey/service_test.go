package apikey

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newKeyService(t *testing.T) *Service {
	t.Helper()

	conn := testutil.NewTestDB(t, &APIKey{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{Conns: &db.Conns{Primary: conn}, Node: node})
}

func TestIssueAndVerify(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()

	cred, err := svc.Issue(ctx, &IssueRequest{Scopes: []string{"operator", "Intake", "intake"}})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(cred.KeyID, "adv_"))
	require.NotEmpty(t, cred.Secret)
	require.Equal(t, cred.KeyID+"."+cred.Secret, cred.Token)

	scopes, err := svc.Verify(ctx, cred.KeyID, cred.Secret)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{ScopeOperator, ScopeIntake}, scopes)
}

func TestIssueRequiresScope(t *testing.T) {
	svc := newKeyService(t)

	_, err := svc.Issue(context.Background(), &IssueRequest{})
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}

func TestVerifyWrongSecret(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()

	cred, err := svc.Issue(ctx, &IssueRequest{Scopes: []string{ScopeIntake}})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, cred.KeyID, "not-the-secret")
	require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
}

func TestVerifyUnknownKey(t *testing.T) {
	svc := newKeyService(t)

	_, err := svc.Verify(context.Background(), "adv_ghost", "whatever")
	require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
}

func TestRevokedKeyRejected(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()

	cred, err := svc.Issue(ctx, &IssueRequest{Scopes: []string{ScopeOperator}})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, cred.KeyID))

	_, err = svc.Verify(ctx, cred.KeyID, cred.Secret)
	require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
}

func TestRevokeUnknownKey(t *testing.T) {
	svc := newKeyService(t)

	err := svc.Revoke(context.Background(), "adv_ghost")
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestVerifyRecordsLastUsed(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()

	cred, err := svc.Issue(ctx, &IssueRequest{Scopes: []string{ScopeIntake}})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, cred.KeyID, cred.Secret)
	require.NoError(t, err)

	key, err := svc.repo.FindOne(ctx, &APIKey{KeyID: cred.KeyID})
	require.NoError(t, err)
	require.NotNil(t, key.LastUsedAt)
}
