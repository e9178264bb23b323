package gateway

import (
	"testing"

	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGroupImageMessage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ev, err := DecodeEvent([]byte(`{
		"post_type": "message",
		"message_type": "group",
		"group_id": 123456,
		"user_id": "10001",
		"message_id": 987654321,
		"message": [
			{"type": "text", "data": {"text": "look "}},
			{"type": "image", "data": {"file": "abc.image", "url": "http://img.example/abc"}},
			{"type": "face", "data": {"id": "14"}},
			{"type": "image", "data": {"file": "https://img.example/def"}}
		]
	}`))
	require.NoError(err)

	assert.Equal(core.EventKindMessage, ev.Kind)
	assert.Equal(core.ScopeGroup, ev.Scope)
	assert.Equal("123456", ev.GroupID)
	assert.Equal("10001", ev.UserID)
	require.NotNil(ev.MessageID)
	assert.Equal(int64(987654321), *ev.MessageID)
	assert.Equal("look ", ev.Text())

	images := ev.Images()
	require.Len(images, 2)
	assert.Equal("http://img.example/abc", images[0].URL)
	assert.Equal("https://img.example/def", images[1].URL)
	assert.Equal(core.SegmentOther, ev.Segments[2].Type)
}

func TestDecodeStringMessage(t *testing.T) {
	assert := assert.New(t)

	ev, err := DecodeEvent([]byte(`{"post_type":"message","message_type":"group","group_id":1,"user_id":2,"message":"添加检测白名单"}`))
	assert.NoError(err)
	assert.Equal("添加检测白名单", ev.Text())
	assert.False(ev.HasImage())
	assert.Nil(ev.MessageID)
}

func TestDecodeImageWithoutURL(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"post_type":"message","message_type":"group","group_id":1,"user_id":2,"message":[{"type":"image","data":{"file":"local.image"}}]}`))
	require.NoError(t, err)
	require.Len(t, ev.Images(), 1)
	assert.Equal(t, "", ev.Images()[0].URL)
}

func TestDecodeNonMessageFrames(t *testing.T) {
	assert := assert.New(t)

	ev, err := DecodeEvent([]byte(`{"post_type":"meta_event","meta_event_type":"heartbeat"}`))
	assert.NoError(err)
	assert.Equal(core.EventKindOther, ev.Kind)

	ev, err = DecodeEvent([]byte(`{"status":"ok","retcode":0,"data":null}`))
	assert.NoError(err)
	assert.Equal(core.EventKindOther, ev.Kind)
	assert.Equal(core.ScopeOther, ev.Scope)

	ev, err = DecodeEvent([]byte(`{"post_type":"message","message_type":"private","user_id":2,"message":"hi"}`))
	assert.NoError(err)
	assert.Equal(core.ScopePrivate, ev.Scope)
}

func TestDecodeMalformed(t *testing.T) {
	assert := assert.New(t)

	_, err := DecodeEvent([]byte(`not json`))
	assert.Error(err)

	_, err = DecodeEvent([]byte(`{"post_type":"message","message":{"type":"text"}}`))
	assert.Error(err)

	_, err = DecodeEvent([]byte(`{"post_type":"message","group_id":true}`))
	assert.Error(err)
}
