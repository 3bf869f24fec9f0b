package usecase_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetName(t *testing.T) {
	n := newLocalCluster(t).node("a")
	c := n.connect()

	c.send(`SETNAME "no way"`)
	c.expect(domain.ErrorMessage("Names may only contain letters, numbers, and underscores"))
	_, named := c.conn.Name()
	assert.False(t, named)

	c.send("SETNAME " + strings.Repeat("x", domain.MaxNameLength+1))
	c.expect(domain.ErrorMessage("That name is too long"))

	c.send("SETNAME")
	c.expect(domain.ErrorMessage("Name cannot be empty"))

	c.setName("alice")
	c.quiet()

	c.setName("alicia")
	c.expect(domain.SuccessMessage("You changed your name to alicia"))

	c.send("NAME")
	c.expect(domain.SuccessMessage("Your name is alicia"))
}

func TestNameQueryWithoutName(t *testing.T) {
	c := newLocalCluster(t).node("a").connect()
	c.send("name")
	c.expect(domain.SuccessMessage("You don't have a name"))

	c.send("TOKEN")
	c.expect(domain.ErrorMessage("You need to set a name"))
}

func TestSetNameInRoomIsPublished(t *testing.T) {
	n := newLocalCluster(t).node("a")
	alice, bob := n.connect(), n.connect()
	alice.setName("alice")
	bob.setName("bob")
	alice.join("lobby", "alice")
	bob.join("lobby", "bob")
	alice.until(domain.JoinedMessage(bob.id(), "bob"))

	bob.setName("robert")
	want := domain.SetNameMessage(bob.id(), "bob", "robert")
	bob.expect(want)
	alice.expect(want)
}

func TestJoinClaimsFreeRoom(t *testing.T) {
	n := newLocalCluster(t).node("a")
	alice, bob := n.connect(), n.connect()

	alice.send("JOIN lobby")
	alice.expect(domain.ErrorMessage("You need to set a name before joining a room"))

	alice.setName("alice")
	alice.send("JOIN")
	alice.expect(domain.ErrorMessage("You need to specify which room you'd like to join"))
	alice.send("JOIN not/valid")
	alice.expect(domain.ErrorMessage("That's not a valid room"))

	alice.send("JOIN lobby")
	alice.expect(domain.RoomMessage("lobby"))
	alice.expect(domain.SuccessMessage("You've just claimed this room!"))
	alice.expect(domain.SuccessMessage("You can use the /topic command to set a topic"))
	alice.expect(domain.JoinedMessage(alice.id(), "alice"))

	bob.setName("bob")
	bob.send("JOIN lobby")
	bob.expect(domain.RoomMessage("lobby"))
	bob.expect(domain.JoinedMessage(bob.id(), "bob"))
	alice.expect(domain.JoinedMessage(bob.id(), "bob"))

	alice.send("JOIN lobby")
	alice.expect(domain.RoomMessage("lobby"))

	room, ok := alice.conn.Room()
	assert.True(t, ok)
	assert.Equal(t, "lobby", room)
}

func TestJoinAnotherRoomLeavesTheFirst(t *testing.T) {
	n := newLocalCluster(t).node("a")
	alice, bob := n.connect(), n.connect()
	alice.setName("alice")
	bob.setName("bob")
	alice.join("lobby", "alice")
	bob.join("lobby", "bob")
	alice.until(domain.JoinedMessage(bob.id(), "bob"))

	bob.join("kitchen", "bob")
	alice.expect(domain.LeftMessage(bob.id(), "bob"))
	alice.quiet()
}

func TestOwnerRejoinIsRecognised(t *testing.T) {
	n := newLocalCluster(t).node("a")
	alice := n.connect()
	alice.setName("alice")
	alice.join("lobby", "alice")

	alice.send("LEAVE")
	alice.expect(domain.RoomMessage(""))

	seen := alice.join("lobby", "alice")
	assert.Equal(t, []string{
		domain.RoomMessage("lobby"),
		domain.SuccessMessage("You own this room"),
		domain.JoinedMessage(alice.id(), "alice"),
	}, seen)
}

func TestTopic(t *testing.T) {
	cl := newLocalCluster(t)
	spy := &spyLedger{Ledger: cl.ledger}
	n := cl.nodeWith("a", spy)
	alice, bob := n.connect(), n.connect()

	alice.setName("alice")
	alice.send("TOPIC hello")
	alice.expect(domain.ErrorMessage("You're not in a room"))

	alice.join("lobby", "alice")
	bob.setName("bob")
	bob.join("lobby", "bob")
	alice.until(domain.JoinedMessage(bob.id(), "bob"))

	bob.send("TOPIC mine now")
	bob.expect(domain.ErrorMessage("You don't have permission to change the topic"))
	assert.Equal(t, 0, spy.topicWrites())

	alice.send("TOPIC " + strings.Repeat("x", domain.MaxTopicLength+1))
	alice.expect(domain.ErrorMessage("Topics may not exceed 140 characters in length"))
	assert.Equal(t, 0, spy.topicWrites())

	alice.send(`TOPIC welcome to "the" lobby`)
	alice.expect(domain.SuccessMessage("Room topic changed."))
	alice.expect(domain.TopicMessage("welcome to the lobby"))
	bob.expect(domain.TopicMessage("welcome to the lobby"))
	assert.Equal(t, 1, spy.topicWrites())

	alice.send("TOPIC")
	alice.expect(domain.SuccessMessage("Room topic changed."))
	alice.expect(domain.WarningMessage("You just set an empty topic"))
	alice.expect(domain.TopicMessage(""))
	bob.expect(domain.TopicMessage(""))
}

func TestTopicRefusedAfterLeaseTakenOver(t *testing.T) {
	cl := newRedisCluster(t)
	ledger := &stealingLedger{Ledger: cl.ledger}
	ledger.steal = func(ctx context.Context, room string) {
		cl.mr.FastForward(cl.cfg.LeaseTTL + time.Second)
		ok, err := cl.ledger.Claim(ctx, room, "NEWOWNER", cl.cfg.LeaseTTL)
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	n := cl.nodeWith("a", ledger)
	alice := n.connect()
	alice.setName("alice")
	alice.join("lobby", "alice")

	alice.send("TOPIC stale")
	alice.expect(domain.ErrorMessage("You don't have permission to change the topic"))
	alice.quiet()

	info, err := cl.ledger.Get(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Equal(t, "NEWOWNER", info.Owner)
	assert.Equal(t, "", info.Topic)
}

func TestJoinSendsExistingTopic(t *testing.T) {
	n := newLocalCluster(t).node("a")
	alice, bob := n.connect(), n.connect()
	alice.setName("alice")
	alice.join("lobby", "alice")
	alice.send("TOPIC snacks")
	alice.expect(domain.SuccessMessage("Room topic changed."))
	alice.expect(domain.TopicMessage("snacks"))

	bob.setName("bob")
	seen := bob.join("lobby", "bob")
	assert.Equal(t, []string{
		domain.RoomMessage("lobby"),
		domain.TopicMessage("snacks"),
		domain.JoinedMessage(bob.id(), "bob"),
	}, seen)
}

func TestLeave(t *testing.T) {
	n := newLocalCluster(t).node("a")
	alice, bob := n.connect(), n.connect()

	alice.send("LEAVE")
	alice.expect(domain.ErrorMessage("You're not in a room"))

	alice.setName("alice")
	bob.setName("bob")
	alice.join("lobby", "alice")
	bob.join("lobby", "bob")
	alice.until(domain.JoinedMessage(bob.id(), "bob"))

	bob.send("LEAVE")
	bob.expect(domain.RoomMessage(""))
	alice.expect(domain.LeftMessage(bob.id(), "bob"))

	bob.send("ROOM")
	bob.expect(domain.RoomMessage(""))
	bob.quiet()
}

func TestSendRequiresRoom(t *testing.T) {
	c := newLocalCluster(t).node("a").connect()
	c.setName("alice")
	c.send(`SEND "hi there"`)
	c.expect(domain.ErrorMessage("You're not in a room"))
}

func TestCloseAnnouncesDeparture(t *testing.T) {
	n := newLocalCluster(t).node("a")
	alice, bob := n.connect(), n.connect()
	alice.setName("alice")
	bob.setName("bob")
	alice.join("lobby", "alice")
	bob.join("lobby", "bob")
	alice.until(domain.JoinedMessage(bob.id(), "bob"))

	bobID := bob.id()
	bob.transport.hangUp(1001, "going away")
	alice.expect(domain.LeftMessage(bobID, "bob"))

	assert.Eventually(t, func() bool {
		_, ok := n.registry.Get(bobID)
		return !ok
	}, waitFor, 10*time.Millisecond)
	assert.True(t, bob.conn.Closed())
	require.NoError(t, bob.conn.Close())
}

func TestCloseListenersRunOnce(t *testing.T) {
	n := newLocalCluster(t).node("a")
	c := n.connect()

	var calls atomic.Int32
	c.conn.On(domain.EventClose, func(ctx context.Context, ev domain.Event) {
		calls.Add(1)
	})

	require.NoError(t, c.conn.Close())
	require.NoError(t, c.conn.Close())
	c.transport.hangUp(1000, "bye")

	assert.Eventually(t, func() bool {
		_, ok := n.registry.Get(c.id())
		return !ok
	}, waitFor, 10*time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}
