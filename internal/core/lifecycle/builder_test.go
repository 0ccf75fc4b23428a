package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/origami/origamid/internal/core/domain"
)

func TestExtractImageID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		records   []domain.BuildRecord
		want      string
		wantBuild bool
	}{
		"classic builder output": {
			records: successLog("9f86d081884c7d659a2feaa0c55ad015"),
			want:    "9f86d081884c7d659a2feaa0c55ad015",
		},
		"aux record after success message": {
			records: records(
				`{"stream":"Successfully built ab12cd34"}`,
				`{"aux":{"ID":"sha256:deadbeef00"}}`,
			),
			want: "deadbeef00",
		},
		"last aux record wins": {
			records: records(
				`{"aux":{"ID":"sha256:0000aaaa"}}`,
				`{"aux":{"ID":"sha256:1111bbbb"}}`,
				`{"stream":"Successfully built 1111bbbb\n"}`,
			),
			want: "1111bbbb",
		},
		"non-object aux is ignored": {
			records: records(
				`{"aux":{"ID":"sha256:cafe01"}}`,
				`{"id":"moby.buildkit.trace","aux":"AAEC"}`,
				`{"stream":"Successfully built cafe01\n"}`,
			),
			want: "cafe01",
		},
		"empty log": {
			wantBuild: true,
		},
		"malformed final record": {
			records: append(successLog("deadbeef00"), domain.NewBuildRecord([]byte("not json"))),
			wantBuild: true,
		},
		"final message is not a success": {
			records: records(
				`{"stream":"Step 1/1 : FROM scratch\n"}`,
				`{"aux":{"ID":"sha256:deadbeef00"}}`,
			),
			wantBuild: true,
		},
		"missing aux record": {
			records:   records(`{"stream":"Successfully built ab12cd34\n"}`),
			wantBuild: true,
		},
		"image id without algorithm": {
			records: records(
				`{"aux":{"ID":"deadbeef00"}}`,
				`{"stream":"Successfully built deadbeef00\n"}`,
			),
			wantBuild: true,
		},
		"aux id of the wrong type": {
			records: records(
				`{"aux":{"ID":42}}`,
				`{"stream":"Successfully built 42\n"}`,
			),
			wantBuild: true,
		},
		"error record": {
			records: records(
				`{"stream":"Step 1/2 : RUN false\n"}`,
				`{"errorDetail":{"code":1,"message":"non-zero code"},"error":"non-zero code"}`,
			),
			wantBuild: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := ExtractImageID(tc.records)
			if tc.wantBuild {
				if !domain.IsBuildError(err) {
					t.Fatalf("ExtractImageID() error = %v, want BuildError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractImageID() unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ExtractImageID() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestImageBuilder_Build(t *testing.T) {
	t.Parallel()

	t.Run("success stores log", func(t *testing.T) {
		t.Parallel()
		rt := newFakeRuntime()
		logs := newMemLogs()

		id, err := NewImageBuilder(rt, logs, nil).Build(context.Background(), "/demos/d1", "log1")
		if err != nil {
			t.Fatalf("Build() error: %v", err)
		}
		if id != "deadbeef00" {
			t.Errorf("Build() = %q, want deadbeef00", id)
		}

		data, err := logs.Read("log1")
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		var got []json.RawMessage
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("stored log is not a JSON array: %v", err)
		}
		if len(got) != len(rt.records) {
			t.Errorf("stored %d records, want %d", len(got), len(rt.records))
		}
	})

	t.Run("build error still stores log", func(t *testing.T) {
		t.Parallel()
		rt := newFakeRuntime()
		rt.records = records(`{"stream":"Step 1/1 : FROM nope\n"}`, "garbage")
		logs := newMemLogs()

		_, err := NewImageBuilder(rt, logs, nil).Build(context.Background(), "/demos/d1", "log2")
		if !domain.IsBuildError(err) {
			t.Fatalf("Build() error = %v, want BuildError", err)
		}
		data, err := logs.Read("log2")
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		want := `[{"stream":"Step 1/1 : FROM nope\n"},"garbage"]`
		if string(data) != want {
			t.Errorf("stored log = %s, want %s", data, want)
		}
	})

	t.Run("stream failure is a connection error", func(t *testing.T) {
		t.Parallel()
		rt := newFakeRuntime()
		rt.records = records(`{"stream":"Step 1/2 : FROM alpine\n"}`)
		rt.buildErr = &domain.ConnectionError{Op: "read build output", Err: errors.New("connection reset by peer")}
		logs := newMemLogs()

		_, err := NewImageBuilder(rt, logs, nil).Build(context.Background(), "/demos/d1", "log3")
		if !domain.IsConnectionError(err) {
			t.Fatalf("Build() error = %v, want ConnectionError", err)
		}
		if _, err := logs.Read("log3"); err != nil {
			t.Errorf("partial log not stored: %v", err)
		}
	})

	t.Run("local failure is not a connection error", func(t *testing.T) {
		t.Parallel()
		rt := newFakeRuntime()
		rt.records = nil
		missing := errors.New("lstat /demos/nope: no such file or directory")
		rt.buildErr = missing
		logs := newMemLogs()

		_, err := NewImageBuilder(rt, logs, nil).Build(context.Background(), "/demos/nope", "log4")
		if domain.IsConnectionError(err) {
			t.Fatalf("Build() error = %v, want a plain error", err)
		}
		if !errors.Is(err, missing) {
			t.Errorf("Build() error = %v, want it to wrap %v", err, missing)
		}
		if _, err := logs.Read("log4"); err != nil {
			t.Errorf("empty log not stored: %v", err)
		}
	})
}
