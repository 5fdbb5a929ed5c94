package replication

import (
	"context"
	"strings"
	"testing"

	"github.com/nikunjy/pgoutputd/lsn"
)

func TestBuildStartReplicationCommandDefaultsToZeroLSN(t *testing.T) {
	cmd := buildStartReplicationCommand("myslot", lsn.Zero, 1, "mypub", false)
	want := `START_REPLICATION SLOT "myslot" LOGICAL 0/0 (proto_version '1', publication_names 'mypub', messages 'false')`
	if cmd != want {
		t.Fatalf("buildStartReplicationCommand() = %q, want %q", cmd, want)
	}
}

func TestBuildStartReplicationCommandExplicitLSN(t *testing.T) {
	cmd := buildStartReplicationCommand("myslot", lsn.LSN{H: 0x16, L: 0xB374D848}, 1, "mypub", true)
	if !strings.Contains(cmd, "16/B374D848") {
		t.Fatalf("buildStartReplicationCommand() = %q, want it to contain the start LSN", cmd)
	}
	if !strings.Contains(cmd, "messages 'true'") {
		t.Fatalf("buildStartReplicationCommand() = %q, want messages 'true'", cmd)
	}
}

func TestOpenRejectsUnsupportedProtocolVersion(t *testing.T) {
	_, err := Open(context.Background(), Options{
		SlotName:        "s",
		PublicationName: "p",
		ProtocolVersion: 2,
	})
	if err == nil {
		t.Fatal("Open() with ProtocolVersion=2 = nil error, want ProtocolError")
	}
}

func TestOpenRequiresSlotName(t *testing.T) {
	_, err := Open(context.Background(), Options{
		PublicationName: "p",
	})
	if err == nil {
		t.Fatal("Open() without SlotName = nil error, want error")
	}
}

func TestOpenRequiresPublicationName(t *testing.T) {
	_, err := Open(context.Background(), Options{
		SlotName: "s",
	})
	if err == nil {
		t.Fatal("Open() without PublicationName = nil error, want error")
	}
}
