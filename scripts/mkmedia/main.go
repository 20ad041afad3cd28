// Command mkmedia writes synthetic sample files for the built-in presets so
// the sampler can run without a recorded sample library.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"gosampler"
)

const sampleRate = 44100

func main() {
	targetDir := flag.String("dir", "media", "Directory to write samples into")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if err := os.MkdirAll(*targetDir, 0755); err != nil {
		fmt.Printf("Error creating directory %s: %v\n", *targetDir, err)
		os.Exit(1)
	}

	written := 0
	for _, preset := range gosampler.PresetNames() {
		def, err := gosampler.Preset(preset)
		if err != nil {
			fmt.Printf("Error reading preset %s: %v\n", preset, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %d zones\n", def.Name, len(def.Zones))

		for _, zone := range def.Zones {
			targetPath := filepath.Join(*targetDir, filepath.FromSlash(zone.Sample))
			if _, err := os.Stat(targetPath); err == nil && !*force {
				fmt.Printf("  %s already exists, skipping\n", zone.Sample)
				continue
			}

			fmt.Printf("  Writing %s...", zone.Sample)
			data := synthesize(zone.Sample, zone.RootNote)
			if err := writeWAV(targetPath, data); err != nil {
				fmt.Printf(" FAILED: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf(" OK (%d frames)\n", len(data)/2)
			written++
		}
	}

	fmt.Printf("Wrote %d samples to %s\n", written, *targetDir)
}

// synthesize picks a generator from the file name: drum names get
// percussive sounds, anything else a decaying harmonic tone at root.
func synthesize(name string, root uint8) []int {
	base := strings.ToLower(filepath.Base(name))
	rng := rand.New(rand.NewPCG(uint64(root), 0x5eed))

	switch {
	case strings.Contains(base, "kick"):
		return render(0.5, func(t float64) float64 {
			freq := 50 + 100*math.Exp(-t*30)
			return math.Sin(2*math.Pi*freq*t) * math.Exp(-t*8)
		})
	case strings.Contains(base, "snare"):
		return render(0.3, func(t float64) float64 {
			tone := math.Sin(2*math.Pi*185*t) * 0.4
			return (tone + (rng.Float64()*2-1)*0.6) * math.Exp(-t*18)
		})
	case strings.Contains(base, "hihat_closed"):
		return render(0.1, func(t float64) float64 {
			return (rng.Float64()*2 - 1) * math.Exp(-t*60)
		})
	case strings.Contains(base, "hihat_open"):
		return render(0.5, func(t float64) float64 {
			return (rng.Float64()*2 - 1) * math.Exp(-t*8)
		})
	case strings.Contains(base, "crash"), strings.Contains(base, "ride"):
		decay := 3.0
		if strings.Contains(base, "ride") {
			decay = 5.0
		}
		return render(1.5, func(t float64) float64 {
			shimmer := math.Sin(2*math.Pi*3200*t) * 0.2
			return ((rng.Float64()*2-1)*0.8 + shimmer) * math.Exp(-t*decay)
		})
	}

	freq := 440 * math.Pow(2, (float64(root)-69)/12)
	return render(2.0, func(t float64) float64 {
		v := 0.0
		for h := 1; h <= 6; h++ {
			v += math.Sin(2*math.Pi*freq*float64(h)*t) / float64(h*h)
		}
		return v * 0.6 * math.Exp(-t*1.5)
	})
}

// render samples gen for seconds into interleaved stereo 16-bit values
func render(seconds float64, gen func(t float64) float64) []int {
	frames := int(seconds * sampleRate)
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		v := gen(float64(i) / sampleRate)
		v = math.Max(-1, math.Min(1, v))
		s := int(v * 32000)
		data[i*2], data[i*2+1] = s, s
	}
	return data
}

func writeWAV(path string, data []int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer out.Close()

	enc := wav.NewEncoder(out, sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return enc.Close()
}
