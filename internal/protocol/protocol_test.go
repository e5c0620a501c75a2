package protocol

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapsync/internal/entry"
	"mapsync/internal/errors"
	"mapsync/internal/tree"
	"mapsync/internal/wire"
)

var (
	testClass  = entry.NewClass("a/b/C")
	testInner  = entry.NewInnerClass(testClass, "D")
	testField  = entry.NewField(testClass, "f", "I")
	testMethod = entry.NewMethod(testClass, "m", "(I)V")
	testLocal  = entry.NewLocalVariable(testMethod, 1, "x", true)
)

func TestServerboundRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    Serverbound
	}{
		{"login", &LoginC2S{ProtocolVersion: ProtocolVersion, Username: "alice"}},
		{"confirm", &ConfirmChangeC2S{SyncID: 42}},
		{"rename", &RenameC2S{Entry: testField, NewName: "count"}},
		{"remove", &RemoveMappingC2S{Entry: testLocal}},
		{"docs", &ChangeDocsC2S{Entry: testMethod, Docs: "Does things."}},
		{"docs cleared", &ChangeDocsC2S{Entry: testInner, Docs: ""}},
		{"mark", &MarkDeobfuscatedC2S{Entry: testClass, Deobfuscated: true}},
		{"unmark", &MarkDeobfuscatedC2S{Entry: testClass, Deobfuscated: false}},
		{"message", &MessageC2S{Text: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := C2S.Encode(tt.p)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			r := bytes.NewReader(frame)
			got, err := ReadServerbound(r)
			if err != nil {
				t.Fatalf("ReadServerbound() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.p) {
				t.Errorf("ReadServerbound() = %#v, want %#v", got, tt.p)
			}
			if r.Len() != 0 {
				t.Errorf("%d trailing bytes after frame", r.Len())
			}
		})
	}
}

func TestClientboundRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    Clientbound
	}{
		{"kick", &KickS2C{Reason: "bye"}},
		{"rename", &RenameS2C{SyncID: 7, Entry: testInner, NewName: "Inner"}},
		{"rename echo", &RenameS2C{SyncID: NoSyncID, Entry: testField, NewName: ""}},
		{"remove", &RemoveMappingS2C{SyncID: 0, Entry: testMethod}},
		{"docs", &ChangeDocsS2C{SyncID: 3, Entry: testLocal, Docs: "loop counter"}},
		{"mark", &MarkDeobfuscatedS2C{SyncID: 9, Entry: testClass, Deobfuscated: true}},
		{"chat", &MessageS2C{Message: ChatMessage("bob", "hi")}},
		{"rename message", &MessageS2C{Message: RenameMessage("bob", testField, "count")}},
		{"problem", &MessageS2C{Message: ProblemMessage("name is reserved")}},
		{"users", &UserListS2C{Users: []string{"alice", "bob"}}},
		{"no users", &UserListS2C{Users: []string{}}},
		{"accepted", &ChangeAcceptedS2C{SyncID: 65534, Entry: testLocal}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := S2C.Encode(tt.p)
			require.NoError(t, err)
			r := bytes.NewReader(frame)
			got, err := ReadClientbound(r)
			require.NoError(t, err)
			assert.Equal(t, tt.p, got)
			assert.Zero(t, r.Len())
		})
	}
}

func TestFrameLayout(t *testing.T) {
	frame, err := C2S.Encode(&ConfirmChangeC2S{SyncID: 0x0102})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x01, 0x02}, frame)

	frame, err = S2C.Encode(&KickS2C{Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 'x'}, frame)
}

func TestRegistryIDs(t *testing.T) {
	assert.Equal(t, 7, C2S.Len())
	assert.Equal(t, 9, S2C.Len())

	id, ok := S2C.ID(&ChangeAcceptedS2C{})
	assert.True(t, ok)
	assert.Equal(t, uint16(8), id)
	assert.Equal(t, "change_accepted", S2C.Name(&ChangeAcceptedS2C{}))
}

func TestUnknownPacketID(t *testing.T) {
	_, err := ReadServerbound(bytes.NewReader([]byte{0x00, 0x63}))
	if !errors.Is(err, errors.UnknownPacket) {
		t.Fatalf("error = %v, want %s", err, errors.UnknownPacket)
	}
	if !errors.IsProtocol(err) {
		t.Error("unknown packet should be a protocol error")
	}
}

func TestCleanEOF(t *testing.T) {
	_, err := ReadClientbound(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("error = %v, want io.EOF", err)
	}
}

func TestTruncatedBodyIsProtocolError(t *testing.T) {
	frame, err := C2S.Encode(&RenameC2S{Entry: testMethod, NewName: "run"})
	require.NoError(t, err)

	_, err = ReadServerbound(bytes.NewReader(frame[:len(frame)-2]))
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEncodeFailureProducesNoFrame(t *testing.T) {
	frame, err := C2S.Encode(&RenameC2S{Entry: testField, NewName: strings.Repeat("n", wire.MaxStringLength+1)})
	assert.Nil(t, frame)
	assert.True(t, errors.Is(err, errors.StringTooLong))

	_, err = S2C.Encode(&RemoveMappingS2C{SyncID: 1})
	assert.Error(t, err)
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, io.ErrClosedPipe
}

func TestWriteFrameSingleWrite(t *testing.T) {
	var buf bytes.Buffer
	frame, err := S2C.Encode(&UserListS2C{Users: []string{"a", "b", "c"}})
	require.NoError(t, err)
	require.NoError(t, WriteFrame(&buf, frame))
	assert.Equal(t, frame, buf.Bytes())

	fw := &failingWriter{}
	err = WriteFrame(fw, frame)
	assert.True(t, errors.Is(err, errors.TransportFailure))
	assert.Equal(t, 1, fw.writes)
}

func TestSyncMappingsRoundTrip(t *testing.T) {
	src := tree.New[entry.Mapping]()
	src.Insert(testClass, entry.NewMapping("com/example/Main"))
	src.Insert(testField, entry.NewMapping("count").WithAccess(entry.AccessPrivate))
	// testMethod is only an anchor for its local.
	src.Insert(testLocal, entry.Mapping{Docs: "the index"})
	src.Insert(entry.NewClass("z/Other"), entry.NewMapping("Other").WithDocs("Other class."))

	frame, err := S2C.Encode(&SyncMappingsS2C{Mappings: src})
	require.NoError(t, err)

	r := bytes.NewReader(frame)
	p, err := ReadClientbound(r)
	require.NoError(t, err)
	assert.Zero(t, r.Len())

	got := p.(*SyncMappingsS2C).Mappings
	assert.Equal(t, src.Len(), got.Len())
	for e, want := range src.All() {
		v, ok := got.Get(e)
		assert.True(t, ok, "missing %s", e)
		assert.Equal(t, want, v, "value of %s", e)
	}
	assert.False(t, got.Contains(testMethod))
	_, anchored := got.Node(testMethod)
	assert.True(t, anchored)
}

func TestSyncMappingsEmpty(t *testing.T) {
	frame, err := S2C.Encode(&SyncMappingsS2C{})
	require.NoError(t, err)
	p, err := ReadClientbound(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Zero(t, p.(*SyncMappingsS2C).Mappings.Len())
}

func TestSyncMappingsRejectsBadAccess(t *testing.T) {
	w := wire.NewWriter()
	w.Uint16(1)
	w.Uint32(1)
	require.NoError(t, w.EntryWithParent(testClass, false))
	w.Bool(true)
	require.NoError(t, w.OptionalString("X"))
	w.Uint8(9)

	_, err := ReadClientbound(bytes.NewReader(w.Bytes()))
	assert.True(t, errors.Is(err, errors.MalformedPacket))
}

func TestMessageString(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{ChatMessage("alice", "hi all"), "<alice> hi all"},
		{ConnectMessage("bob"), "bob joined"},
		{DisconnectMessage("bob"), "bob left"},
		{EditDocsMessage("alice", testClass), "alice edited docs for a/b/C"},
		{MarkDeobfuscatedMessage("alice", testField), "alice marked a/b/C.f as deobfuscated"},
		{RemoveMappingMessage("alice", testInner), "alice removed the mapping for a/b/C$D"},
		{RenameMessage("alice", testMethod, "run"), "alice renamed a/b/C.m(I)V to run"},
		{ProblemMessage("duplicate name"), "problem: duplicate name"},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Kind.String(), func(t *testing.T) {
			if got := tt.msg.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnknownMessageKind(t *testing.T) {
	w := wire.NewWriter()
	w.Uint16(6)
	w.Uint8(200)
	_, err := ReadClientbound(bytes.NewReader(w.Bytes()))
	assert.True(t, errors.Is(err, errors.MalformedPacket))
}
