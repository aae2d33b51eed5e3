package vulkan

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

func TestCheckExisting(t *testing.T) {
	actual := []string{"VK_KHR_surface\x00", "VK_KHR_swapchain", "VK_EXT_debug_report\x00"}
	tests := []struct {
		required          []string
		existing, missing []string
	}{
		{[]string{"VK_KHR_swapchain\x00"}, []string{"VK_KHR_swapchain\x00"}, nil},
		{[]string{"VK_KHR_surface", "VK_KHR_portability_subset"}, []string{"VK_KHR_surface"}, []string{"VK_KHR_portability_subset"}},
		{nil, nil, nil},
	}
	for _, tt := range tests {
		existing, missing := checkExisting(actual, tt.required)
		if !reflect.DeepEqual(existing, tt.existing) || !reflect.DeepEqual(missing, tt.missing) {
			t.Errorf("checkExisting(%q) = %q, %q; want %q, %q",
				tt.required, existing, missing, tt.existing, tt.missing)
		}
	}
}

func TestSafeStrings(t *testing.T) {
	got := safeStrings([]string{"a", "b\x00", ""})
	want := []string{"a\x00", "b\x00", "\x00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("safeStrings = %q, want %q", got, want)
	}
}

func TestTable(t *testing.T) {
	tab := newTable[hal.Buffer, string]()
	a := tab.put("a")
	b := tab.put("b")
	if a == 0 || b == 0 || a == b {
		t.Fatalf("handles %d, %d", a, b)
	}
	if tab.get(b) != "b" || tab.len() != 2 {
		t.Errorf("get = %q, len = %d", tab.get(b), tab.len())
	}
	if v, ok := tab.take(a); !ok || v != "a" {
		t.Errorf("take = %q, %v", v, ok)
	}
	if _, ok := tab.take(a); ok {
		t.Error("second take succeeded")
	}
	if c := tab.put("c"); c == a {
		t.Error("handle reused")
	}
}

func TestDebugReport(t *testing.T) {
	var buf bytes.Buffer
	i := &Instance{log: slog.New(slog.NewTextHandler(&buf, nil))}
	tests := []struct {
		flags vk.DebugReportFlags
		level string
	}{
		{vk.DebugReportFlags(vk.DebugReportErrorBit), "level=ERROR"},
		{vk.DebugReportFlags(vk.DebugReportWarningBit), "level=WARN"},
		{vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit), "level=WARN"},
	}
	for _, tt := range tests {
		buf.Reset()
		if ret := i.debugReport(tt.flags, 0, 0, 0, 7, "Validation", "bad usage", nil); ret != vk.Bool32(vk.False) {
			t.Errorf("callback returned %d, want false", ret)
		}
		out := buf.String()
		for _, want := range []string{tt.level, `msg="Validation Layer: bad usage"`, "layer=Validation", "code=7"} {
			if !strings.Contains(out, want) {
				t.Errorf("flags %d: %q missing %s", tt.flags, out, want)
			}
		}
	}
}

func TestReportLoggerDefault(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if reportLogger(custom) != custom {
		t.Error("configured logger replaced")
	}
	if _, ok := reportLogger(nil).Handler().(*slog.TextHandler); !ok {
		t.Error("default report logger is not a text handler")
	}
}
