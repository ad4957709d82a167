package taskutil

import "testing"

func TestCheckName(t *testing.T) {
	cases := []struct {
		kind    NameKind
		value   string
		wantErr bool
	}{
		{kind: KindMarker, value: "ssh_port_changed"},
		{kind: KindMarker, value: "unattended-config.v1"},
		{kind: KindMarker, value: "", wantErr: true},
		{kind: KindMarker, value: " padded", wantErr: true},
		{kind: KindMarker, value: "../escape", wantErr: true},
		{kind: KindUser, value: "deploy"},
		{kind: KindUser, value: "_svc-1"},
		{kind: KindUser, value: "Deploy", wantErr: true},
		{kind: KindUser, value: "with space", wantErr: true},
		{kind: KindGroup, value: "sudo;reboot", wantErr: true},
		{kind: KindPackage, value: "libapache2-mod-wsgi-py3"},
		{kind: KindPackage, value: "g++"},
		{kind: KindPackage, value: "libc6:amd64"},
		{kind: KindPackage, value: "ufw reboot", wantErr: true},
		{kind: NameKind("host"), value: "web1", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind)+"/"+tc.value, func(t *testing.T) {
			err := CheckName(tc.kind, tc.value)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}
