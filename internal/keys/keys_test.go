package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys_Builders(t *testing.T) {
	ns := "default"
	assert.Equal(t, "jobq:{default}:scheduled", Scheduled(ns))
	assert.Equal(t, "jobq:{default}:ready", Ready(ns))
	assert.Equal(t, "jobq:{default}:active", Active(ns))
	assert.Equal(t, "jobq:{default}:state:dead", State(ns, "dead"))
	assert.Equal(t, "jobq:{default}:job:abc", Job(ns, "abc"))
	assert.Equal(t, "jobq:{default}:job:", JobPrefix(ns))
}

func TestKeys_For(t *testing.T) {
	n := For("video")
	assert.Equal(t, "video", n.Name)
	assert.Equal(t, "jobq:{video}:scheduled", n.Scheduled)
	assert.Equal(t, "jobq:{video}:ready", n.Ready)
	assert.Equal(t, "jobq:{video}:active", n.Active)
	assert.Equal(t, "jobq:{video}:state:pending", n.Pending)
	assert.Equal(t, "jobq:{video}:state:processing", n.Processing)
	assert.Equal(t, "jobq:{video}:state:completed", n.Completed)
	assert.Equal(t, "jobq:{video}:state:dead", n.Dead)
	assert.Equal(t, "jobq:{video}:job:42", n.Job("42"))
	assert.Equal(t, n.Dead, n.Index("dead"))
	assert.Equal(t, State("video", "pending"), n.Index("pending"))
}
