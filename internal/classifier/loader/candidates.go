package loader

const generic = "llama_jni"

// Candidates returns the engine builds the host can run, most capable first.
// The generic build is always last.
func Candidates(f Features) []string {
	var out []string
	switch f.Arch {
	case "arm64":
		if f.DotProd && f.I8MM {
			out = append(out, "llama_jni_v8_2_dotprod_i8mm")
		}
		if f.I8MM {
			out = append(out, "llama_jni_v8_2_i8mm")
		}
		if f.DotProd {
			out = append(out, "llama_jni_v8_2_dotprod")
		}
		if f.FP16 {
			out = append(out, "llama_jni_v8_2")
		}
		out = append(out, "llama_jni_v8")
	case "amd64":
		if f.AVX512 {
			out = append(out, "llama_jni_x86_64_avx512")
		}
		if f.AVX2 {
			out = append(out, "llama_jni_x86_64_avx2")
		}
		out = append(out, "llama_jni_x86_64")
	}
	return append(out, generic)
}

var descriptions = map[string]string{
	"llama_jni_v8_2_dotprod_i8mm": "ARMv8.2 + DotProd + I8MM (Best)",
	"llama_jni_v8_2_i8mm":         "ARMv8.2 + I8MM",
	"llama_jni_v8_2_dotprod":      "ARMv8.2 + DotProd",
	"llama_jni_v8_2":              "ARMv8.2 + FP16",
	"llama_jni_v8":                "ARMv8 + NEON",
	"llama_jni_x86_64_avx512":     "x86_64 + AVX-512",
	"llama_jni_x86_64_avx2":       "x86_64 + AVX2",
	"llama_jni_x86_64":            "x86_64 + SSE4.2",
	generic:                       "Generic (Fallback)",
}

// Describe returns a human-readable capability summary for a build name.
func Describe(name string) string {
	if d, ok := descriptions[name]; ok {
		return d
	}
	return "Unknown"
}

// LibraryFile is the shared object file name of a build.
func LibraryFile(name string) string { return "lib" + name + ".so" }
