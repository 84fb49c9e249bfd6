//go:build ignore

// build.go - vidloader build system
// Usage: go run build.go [-target=TARGET] [-v] [-public-key=KEY | -public-key-file=FILE]
// Targets: all, vidloader, licensegen, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	version = "1.4.0"
	module  = "vidloader"
)

// BuildContext holds configuration for the build process
type BuildContext struct {
	Verbose   bool
	PublicKey string
	GOOS      string
	GOARCH    string
}

var (
	rootDir string
	distDir string

	// key = cmd directory, value = output name without extension
	executables = map[string]string{
		"vidloader":  "vidloader",
		"licensegen": "licensegen",
	}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("Failed to get current directory: %v", err))
	}
	rootDir = cwd
	distDir = filepath.Join(rootDir, "dist")

	if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); os.IsNotExist(err) {
		panic(fmt.Sprintf("go.mod not found in %s. Run the build from the repository root.", rootDir))
	}
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	publicKey := flag.String("public-key", os.Getenv("VIDLOADER_PUBLIC_KEY"), "base64 Ed25519 license verification key")
	publicKeyFile := flag.String("public-key-file", "", "file holding the license verification key")
	goos := flag.String("os", runtime.GOOS, "target operating system")
	goarch := flag.String("arch", runtime.GOARCH, "target architecture")
	flag.Parse()

	printHeader()
	startTime := time.Now()

	ctx := &BuildContext{
		Verbose:   *verbose,
		PublicKey: strings.TrimSpace(*publicKey),
		GOOS:      *goos,
		GOARCH:    *goarch,
	}
	if *publicKeyFile != "" {
		data, err := os.ReadFile(*publicKeyFile)
		if err != nil {
			printError(fmt.Sprintf("Failed to read public key file: %v", err))
			os.Exit(1)
		}
		ctx.PublicKey = strings.TrimSpace(string(data))
	}

	switch *target {
	case "all":
		buildAll(ctx)
	case "vidloader", "licensegen":
		buildExecutable(*target, ctx)
	case "test":
		runTests(ctx.Verbose)
	case "clean":
		clean(ctx.Verbose)
	case "release":
		buildRelease(ctx)
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printHeader() {
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println(colorCyan + "         vidloader - Build System          " + colorReset)
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println()
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func printWarning(msg string) {
	fmt.Printf("%s[WARNING]%s %s\n", colorYellow, colorReset, msg)
}

func buildAll(ctx *BuildContext) {
	printInfo("Building all components...")

	if err := os.MkdirAll(distDir, 0755); err != nil {
		printError(fmt.Sprintf("Failed to create dist directory: %v", err))
		os.Exit(1)
	}
	for name := range executables {
		buildExecutable(name, ctx)
	}

	printSuccess("All components built successfully!")
}

func buildExecutable(name string, ctx *BuildContext) {
	exeName, ok := executables[name]
	if !ok {
		printError(fmt.Sprintf("Unknown executable: %s", name))
		os.Exit(1)
	}
	if ctx.GOOS == "windows" {
		exeName += ".exe"
	}

	printInfo(fmt.Sprintf("Building %s for %s/%s...", name, ctx.GOOS, ctx.GOARCH))

	outputPath := filepath.Join(distDir, exeName)
	ldflags := "-s -w"
	if name == "vidloader" {
		if ctx.PublicKey == "" {
			printWarning("No public key given, every license will be rejected by this build")
		} else {
			ldflags += " -X main.publicKey=" + ctx.PublicKey
		}
	}

	args := []string{"build", "-trimpath", "-ldflags", ldflags, "-o", outputPath, "./cmd/" + name}
	if ctx.Verbose {
		args = append([]string{"build", "-v"}, args[1:]...)
	}

	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Env = append(os.Environ(), "GOOS="+ctx.GOOS, "GOARCH="+ctx.GOARCH)
	if ctx.Verbose {
		fmt.Printf("Running: go %s\n", strings.Join(args, " "))
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build %s: %v", name, err))
		os.Exit(1)
	}

	if info, err := os.Stat(outputPath); err == nil {
		sizeMB := float64(info.Size()) / 1024 / 1024
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", exeName, sizeMB))
	}
}

func runTests(verbose bool) {
	printInfo("Running Go tests...")

	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")

	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Go tests failed: %v", err))
		os.Exit(1)
	}

	printSuccess("All tests passed")
}

func clean(verbose bool) {
	printInfo("Cleaning build artifacts...")

	if err := os.RemoveAll(distDir); err != nil {
		printError(fmt.Sprintf("Failed to clean dist directory: %v", err))
		return
	}
	if verbose {
		printInfo("Removed " + distDir)
	}

	printSuccess("Build artifacts cleaned")
}

// buildRelease builds static binaries and writes VERSION.txt next to them
func buildRelease(ctx *BuildContext) {
	printInfo("Building release version...")

	if ctx.PublicKey == "" {
		printError("A release build needs -public-key or -public-key-file")
		os.Exit(1)
	}

	clean(ctx.Verbose)
	os.Setenv("CGO_ENABLED", "0")
	buildAll(ctx)

	versionFile := filepath.Join(distDir, "VERSION.txt")
	content := fmt.Sprintf("%s v%s\nBuilt: %s\n", module, version, time.Now().Format("2006-01-02 15:04:05"))
	if err := os.WriteFile(versionFile, []byte(content), 0644); err != nil {
		printWarning(fmt.Sprintf("Failed to write VERSION.txt: %v", err))
	}

	printSuccess("Release build completed")
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v] [-public-key=KEY | -public-key-file=FILE] [-os=GOOS] [-arch=GOARCH]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all               Build vidloader and licensegen (default)")
	fmt.Println("  vidloader         Build the application CLI only")
	fmt.Println("  licensegen        Build the vendor license tool only")
	fmt.Println("  test              Run all tests")
	fmt.Println("  clean             Remove dist/")
	fmt.Println("  release           Clean, then build with CGO disabled")
	fmt.Println()
	fmt.Println("The public key is printed by: go run ./cmd/licensegen -keygen")
}
