package loader

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"
)

// Features is the subset of host CPU capabilities that decides which
// engine build can run.
type Features struct {
	Arch string

	// ARM64
	FP16    bool
	DotProd bool
	I8MM    bool

	// x86-64
	SSE42  bool
	AVX2   bool
	AVX512 bool

	Brand         string
	PhysicalCores int
	LogicalCores  int
}

const cpuinfoPath = "/proc/cpuinfo"

// DetectFeatures merges what the runtime, CPUID and /proc/cpuinfo report.
// A flag set by any source counts.
func DetectFeatures() Features {
	f := Features{
		Arch:          runtime.GOARCH,
		FP16:          cpu.ARM64.HasFPHP || cpu.ARM64.HasASIMDHP,
		DotProd:       cpu.ARM64.HasASIMDDP,
		I8MM:          cpu.ARM64.HasI8MM,
		SSE42:         cpu.X86.HasSSE42,
		AVX2:          cpu.X86.HasAVX2,
		AVX512:        cpu.X86.HasAVX512F,
		Brand:         strings.TrimSpace(cpuid.CPU.BrandName),
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  runtime.NumCPU(),
	}
	f.FP16 = f.FP16 || cpuid.CPU.Supports(cpuid.FPHP) || cpuid.CPU.Supports(cpuid.ASIMDHP)
	f.DotProd = f.DotProd || cpuid.CPU.Supports(cpuid.ASIMDDP)
	f.SSE42 = f.SSE42 || cpuid.CPU.Supports(cpuid.SSE42)
	f.AVX2 = f.AVX2 || cpuid.CPU.Supports(cpuid.AVX2)
	f.AVX512 = f.AVX512 || cpuid.CPU.Supports(cpuid.AVX512F)

	if fh, err := os.Open(cpuinfoPath); err == nil {
		f = f.merge(parseCPUInfo(fh))
		_ = fh.Close()
	}
	return f
}

func (f Features) merge(flags map[string]bool) Features {
	f.FP16 = f.FP16 || flags["fphp"] || flags["asimdhp"]
	f.DotProd = f.DotProd || flags["asimddp"] || flags["dotprod"]
	f.I8MM = f.I8MM || flags["i8mm"]
	f.SSE42 = f.SSE42 || flags["sse4_2"]
	f.AVX2 = f.AVX2 || flags["avx2"]
	f.AVX512 = f.AVX512 || flags["avx512f"]
	return f
}

// parseCPUInfo collects the lowercase tokens of every "Features" (ARM) or
// "flags" (x86) line.
func parseCPUInfo(r io.Reader) map[string]bool {
	out := map[string]bool{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.ToLower(sc.Text())
		if !strings.HasPrefix(line, "features") && !strings.HasPrefix(line, "flags") {
			continue
		}
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		for _, tok := range strings.Fields(rest) {
			out[tok] = true
		}
	}
	return out
}

// Threads is the default inference thread count: physical cores when
// known, otherwise logical.
func (f Features) Threads() int {
	if f.PhysicalCores > 0 {
		return f.PhysicalCores
	}
	if f.LogicalCores > 0 {
		return f.LogicalCores
	}
	return 1
}
