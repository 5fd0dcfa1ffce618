package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		kind  CommandKind
		group string
		text  string
		err   bool
	}{
		{name: "plain text", line: "hello there", kind: CmdText, text: "hello there"},
		{name: "keyword prefix is plain text", line: "GROUP_CREATEteam", kind: CmdText, text: "GROUP_CREATEteam"},
		{name: "create", line: "GROUP_CREATE team", kind: CmdGroupCreate, group: "team"},
		{name: "create missing code", line: "GROUP_CREATE", kind: CmdGroupCreate, err: true},
		{name: "create code with spaces", line: "GROUP_CREATE a b", kind: CmdGroupCreate, err: true},
		{name: "join", line: "GROUP_JOIN Team", kind: CmdGroupJoin, group: "Team"},
		{name: "group message", line: "GROUP_MSG team hello  world", kind: CmdGroupMsg, group: "team", text: "hello  world"},
		{name: "group message missing text", line: "GROUP_MSG team", kind: CmdGroupMsg, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ParseCommand(tt.line)
			assert.Equal(t, tt.kind, cmd.Kind)
			if tt.err {
				assert.Error(t, cmd.Err)
				return
			}
			require.NoError(t, cmd.Err)
			assert.Equal(t, tt.group, cmd.Group)
			assert.Equal(t, tt.text, cmd.Text)
		})
	}
}

func TestParseFileMeta(t *testing.T) {
	meta, err := ParseFileMeta("GROUP team my report.pdf 1024")
	require.NoError(t, err)
	assert.Equal(t, &FileMeta{Mode: ModeGroup, Target: "team", Name: "my report.pdf", Length: 1024}, meta)

	meta, err = ParseFileMeta("broadcast Broadcast notes.txt 5")
	require.NoError(t, err)
	assert.Equal(t, ModeBroadcast, meta.Mode)
	assert.Equal(t, "notes.txt", meta.Name)

	meta, err = ParseFileMeta("BROADCAST notes.txt 5")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", meta.Name)
	assert.Empty(t, meta.Target)
}

func TestParseFileMetaErrors(t *testing.T) {
	_, err := ParseFileMeta("GROUP team")
	assert.Error(t, err)

	meta, err := ParseFileMeta("GROUP team file.txt abc")
	assert.Error(t, err)
	assert.Nil(t, meta, "length is unknown, nothing can be skipped")

	_, err = ParseFileMeta("GROUP team file.txt -1")
	assert.Error(t, err)

	meta, err = ParseFileMeta("UNICAST bob file.txt 12")
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	require.NotNil(t, meta)
	assert.Equal(t, int64(12), meta.Length)

	meta, err = ParseFileMeta("GROUP file.txt 3")
	assert.Error(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, int64(3), meta.Length)
}

func TestFileTransferLineRoundTrip(t *testing.T) {
	line := FormatFileTransfer(ModeGroup, "team", "a b.txt", 7)
	cmd := ParseCommand(line)
	require.NoError(t, cmd.Err)
	require.Equal(t, CmdFileTransfer, cmd.Kind)
	assert.Equal(t, "team", cmd.File.Target)
	assert.Equal(t, "a b.txt", cmd.File.Name)
	assert.Equal(t, int64(7), cmd.File.Length)
}

func TestParseFileReceived(t *testing.T) {
	name, length, ok := ParseFileReceived("FILE_RECEIVED my file.txt 42")
	require.True(t, ok)
	assert.Equal(t, "my file.txt", name)
	assert.Equal(t, int64(42), length)

	_, _, ok = ParseFileReceived("FILE_RECEIVED nolength")
	assert.False(t, ok)
	_, _, ok = ParseFileReceived("alice: FILE_RECEIVED x 1")
	assert.False(t, ok)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "A: hello", BroadcastLine("A", "hello"))
	assert.Equal(t, "[Group team] A: hello", GroupLine("team", "A", "hello"))
	assert.Equal(t, "GROUP_CREATED team", Reply(GroupCreated, "team"))
	assert.Equal(t, "FILE_SUCCESS", Reply(FileSuccess, ""))
}
