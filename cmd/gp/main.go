// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command gp is the scene preprocessor CLI of spec.md §6: it loads a
// triangle mesh from meshfile's native Vertex/Face buffer format
// (third-party asset-importer support is spec.md §1's explicit
// Non-goal), runs it through the BVH builder (C3), collapser (C4) and
// compressor (C5), and writes the result as a scene file (C6).
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jeffamstutz/gatling/bvh"
	"github.com/jeffamstutz/gatling/linear"
	"github.com/jeffamstutz/gatling/meshfile"
	"github.com/jeffamstutz/gatling/scenefile"
)

const usage = `usage: gp <input-mesh-file> <output.gsd> [--image-width=N] [--image-height=N] [--sr-front=F] [--sr-back=F] [--sr-outside-frustum=F]`

// flags holds the CLI's parsed options. sr-front/sr-back/sr-
// outside-frustum are accepted and validated (spec.md §6 names them
// as accepted flags) but have no effect on C3-C6's output: spec.md's
// scene-file header (§6's field table) carries no shading-rate
// record, and nothing later in the pipeline consumes them. They are
// parsed, not dropped, so that "gp ... --sr-front=2.0" remains a
// forward-compatible invocation rather than an error.
type flags struct {
	imageWidth, imageHeight      int
	srFront, srBack, srOutFrustum float64
}

func defaultFlags() flags {
	return flags{imageWidth: 1280, imageHeight: 720, srFront: 1, srBack: 1, srOutFrustum: 1}
}

func parseArgs(args []string) (input, output string, f flags, err error) {
	f = defaultFlags()
	var positional []string
	for _, a := range args {
		if !strings.HasPrefix(a, "--") {
			positional = append(positional, a)
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(a, "--"), "=", 2)
		if len(kv) != 2 {
			return "", "", f, fmt.Errorf("malformed flag %q", a)
		}
		key, val := kv[0], kv[1]
		switch key {
		case "image-width":
			f.imageWidth, err = strconv.Atoi(val)
		case "image-height":
			f.imageHeight, err = strconv.Atoi(val)
		case "sr-front":
			f.srFront, err = strconv.ParseFloat(val, 64)
		case "sr-back":
			f.srBack, err = strconv.ParseFloat(val, 64)
		case "sr-outside-frustum":
			f.srOutFrustum, err = strconv.ParseFloat(val, 64)
		default:
			return "", "", f, fmt.Errorf("unknown flag %q", a)
		}
		if err != nil {
			return "", "", f, fmt.Errorf("flag %q: %v", a, err)
		}
	}
	if len(positional) != 2 {
		return "", "", f, fmt.Errorf("expected exactly 2 positional arguments, got %d", len(positional))
	}
	return positional[0], positional[1], f, nil
}

func run(args []string) error {
	input, output, f, err := parseArgs(args)
	if err != nil {
		return fmt.Errorf("%v\n%s", err, usage)
	}
	if f.imageWidth <= 0 || f.imageHeight <= 0 {
		return fmt.Errorf("--image-width and --image-height must be positive")
	}

	faces, verts, err := meshfile.Load(input)
	if err != nil {
		return err
	}
	log.Printf("gp: loaded %d faces, %d vertices from %s", len(faces), len(verts), input)

	bin, err := bvh.Build(faces, verts, bvh.DefaultConfig())
	if err != nil {
		return fmt.Errorf("bvh.Build: %w", err)
	}
	wide := bvh.Collapse(bin, bvh.DefaultCollapseConfig())
	comp, err := bvh.Compress(wide)
	if err != nil {
		return fmt.Errorf("bvh.Compress: %w", err)
	}
	log.Printf("gp: compressed BVH has %d nodes", len(comp.Nodes))

	materials := make([]bvh.Material, 1)
	scene := &scenefile.Scene{
		Width:     f.imageWidth,
		Height:    f.imageHeight,
		Nodes:     comp.Nodes,
		Faces:     comp.Faces,
		Vertices:  verts,
		Materials: materials,
		Bounds:    comp.Bounds,
		Camera:    defaultCamera(comp.Bounds),
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	defer out.Close()
	if err := scenefile.Write(out, scene); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	log.Printf("gp: wrote %s", output)
	return nil
}

// defaultCamera places a camera looking at the scene's bounds center
// from 1.5 times the bounds' diagonal length away along +Z, with a 50°
// horizontal field of view, when the input mesh carries no camera of
// its own (spec.md's mesh input has no camera concept).
func defaultCamera(bounds linear.AABB) scenefile.Camera {
	var center, extent linear.V3
	center.Add(&bounds.Min, &bounds.Max)
	center.Scale(0.5, &center)
	extent.Sub(&bounds.Max, &bounds.Min)
	diag := extent.Len()
	if diag == 0 {
		diag = 1
	}
	origin := center
	origin[2] += diag * 1.5
	var forward linear.V3
	forward.Sub(&center, &origin)
	forward.Norm(&forward)
	return scenefile.Camera{
		Origin:  origin,
		Forward: forward,
		Up:      linear.V3{0, 1, 0},
		HFov:    50 * 3.14159265 / 180,
	}
}

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "gp:", err)
		os.Exit(1)
	}
}
