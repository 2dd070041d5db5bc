package router

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthnet/hearth/server/internal/auth"
	"github.com/hearthnet/hearth/server/internal/registry"
	"github.com/hearthnet/hearth/server/internal/registry/registrytest"
)

func setup(t *testing.T, verifier auth.IdentityVerifier) (*Router, *registry.Registry, string) {
	t.Helper()
	reg := registry.New()
	id := reg.Register(registrytest.New())
	return New(reg, verifier), reg, id
}

func TestHandle_Identify(t *testing.T) {
	rt, reg, id := setup(t, nil)

	rt.Handle(id, []byte(`{"kind":"identify","userId":"u1"}`))
	assert.Equal(t, []string{id}, reg.RecipientsFor("u1"))

	// A later identify overwrites the first.
	rt.Handle(id, []byte(`{"kind":"identify","userId":"u2"}`))
	assert.Nil(t, reg.RecipientsFor("u1"))
	assert.Equal(t, []string{id}, reg.RecipientsFor("u2"))
}

func TestHandle_LegacyAuth(t *testing.T) {
	rt, reg, id := setup(t, nil)
	rt.Handle(id, []byte(`{"type":"ignored","kind":"auth","userId":"u1"}`))
	assert.Equal(t, []string{id}, reg.RecipientsFor("u1"))
}

func TestHandle_IdentifyWithoutUserIgnored(t *testing.T) {
	rt, reg, id := setup(t, nil)
	rt.Handle(id, []byte(`{"kind":"identify"}`))
	assert.Zero(t, reg.Identified())
}

func TestHandle_IdentifyJWT(t *testing.T) {
	rt, reg, id := setup(t, auth.NewJWTVerifier("k"))

	rt.Handle(id, []byte(`{"kind":"identify","userId":"u1"}`))
	assert.Zero(t, reg.Identified(), "no token, stays anonymous")

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	rt.Handle(id, []byte(`{"kind":"identify","token":"`+tok+`"}`))
	assert.Equal(t, []string{id}, reg.RecipientsFor("u1"))
}

func TestHandle_Rooms(t *testing.T) {
	rt, reg, id := setup(t, nil)

	rt.Handle(id, []byte(`{"kind":"room-join","room":"g1"}`))
	rt.Handle(id, []byte(`{"kind":"room-join","room":"g1"}`))
	assert.Equal(t, map[string]int{"g1": 1}, reg.Rooms())

	rt.Handle(id, []byte(`{"kind":"room-leave","room":"nope"}`))
	rt.Handle(id, []byte(`{"kind":"leave_room","room":"g1"}`))
	assert.Empty(t, reg.Rooms())

	rt.Handle(id, []byte(`{"kind":"room-join"}`))
	assert.Empty(t, reg.Rooms())
}

func TestHandle_TouchesOnEveryFrame(t *testing.T) {
	rt, reg, id := setup(t, nil)
	before := reg.Connections()[0].LastSeen

	time.Sleep(2 * time.Millisecond)
	rt.Handle(id, []byte(`not json`))
	assert.True(t, reg.Connections()[0].LastSeen.After(before))
}

func TestHandle_BadFramesLeaveStateAlone(t *testing.T) {
	rt, reg, id := setup(t, nil)
	other := reg.Register(registrytest.New())
	rt.Handle(other, []byte(`{"kind":"identify","userId":"u9"}`))

	for _, frame := range []string{`{`, `{"userId":"u1"}`, `{"kind":"dance"}`, ``} {
		rt.Handle(id, []byte(frame))
	}
	assert.Equal(t, 2, reg.OnlineCount())
	assert.Equal(t, []string{other}, reg.RecipientsFor("u9"))
	assert.Nil(t, reg.RecipientsFor("u1"))
}

func TestHandle_UnknownConnection(t *testing.T) {
	rt, reg, _ := setup(t, nil)
	rt.Handle("ghost", []byte(`{"kind":"identify","userId":"u1"}`))
	assert.Nil(t, reg.RecipientsFor("u1"))
}
