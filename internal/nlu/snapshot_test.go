package nlu

import (
	"errors"
	"reflect"
	"testing"
)

func TestSnapshotResolve(t *testing.T) {
	snap := NewSnapshot(1, []string{"101", "102", "103"})

	tests := []struct {
		name    string
		ordinal int
		wantID  string
		wantErr bool
	}{
		{"第一封是最新的", 1, "101", false},
		{"第三封", 3, "103", false},
		{"越界", 4, "", true},
		{"零", 0, "", true},
		{"负数", -1, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := snap.Resolve(tt.ordinal)
			if tt.wantErr {
				var nfErr *NotFoundError
				if !errors.As(err, &nfErr) {
					t.Errorf("Resolve(%d) 期望 NotFoundError, 实际 %v", tt.ordinal, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%d) 出错: %v", tt.ordinal, err)
			}
			if id != tt.wantID {
				t.Errorf("Resolve(%d) = %s, 期望 %s", tt.ordinal, id, tt.wantID)
			}
		})
	}
}

func TestSnapshotImmutableAcrossVersions(t *testing.T) {
	// 同一序号在不同版本快照下指向各自版本的邮件
	v1 := NewSnapshot(1, []string{"a", "b"})
	v2 := NewSnapshot(2, []string{"x", "a", "b"})

	id1, _ := v1.Resolve(1)
	id2, _ := v2.Resolve(1)
	if id1 != "a" || id2 != "x" {
		t.Errorf("v1[1]=%s v2[1]=%s, 期望 a 和 x", id1, id2)
	}
	// 旧快照不受新列表影响
	if again, _ := v1.Resolve(1); again != "a" {
		t.Errorf("旧快照被改动: %s", again)
	}
}

func TestSnapshotLatest(t *testing.T) {
	snap := NewSnapshot(1, []string{"201", "202"})
	id, err := snap.Latest()
	if err != nil || id != "201" {
		t.Errorf("Latest() = (%s, %v), 期望 (201, nil)", id, err)
	}

	empty := NewSnapshot(2, nil)
	if _, err := empty.Latest(); err == nil {
		t.Error("空快照的 Latest() 应该出错")
	}
}

func TestSnapshotFirstN(t *testing.T) {
	snap := NewSnapshot(1, []string{"1", "2", "3"})

	if got := snap.FirstN(2); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("FirstN(2) = %v", got)
	}
	if got := snap.FirstN(10); !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Errorf("FirstN(10) = %v, 期望全部返回", got)
	}

	var nilSnap *Snapshot
	if got := nilSnap.FirstN(3); got != nil {
		t.Errorf("nil 快照 FirstN = %v, 期望 nil", got)
	}
	if nilSnap.Len() != 0 {
		t.Error("nil 快照 Len 应为 0")
	}
}
