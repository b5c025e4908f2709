// Command mpsdemo runs one multiply per compute mode with the exponent
// statistics engine armed and prints the measured precision-loss ratio
// next to the global threshold.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/mixprec/mpsgemm"
	"github.com/mixprec/mpsgemm/cublas"
	_ "github.com/mixprec/mpsgemm/kernels"
)

func main() {
	n := flag.Int("n", 1000, "matrix dimension")
	lossThreshold := flag.Float64("threshold", 1.0, "global lost-ratio threshold")
	scale := flag.Float64("scale", 250.0, "classification scale parameter")
	flag.Parse()

	if err := mpsgemm.Init(); err != nil {
		log.Fatal(err)
	}
	mpsgemm.EnableExpStats()
	defer mpsgemm.DisableExpStats()
	if err := mpsgemm.SetExpStatsParams(*lossThreshold, *scale); err != nil {
		log.Fatal(err)
	}

	dim := *n
	a := make([]float32, dim*dim)
	b := make([]float32, dim*dim)
	c := make([]float32, dim*dim)
	for i := range a {
		a[i] = rand.Float32()
		b[i] = rand.Float32()
	}

	modes := []mpsgemm.ComputeMode{
		mpsgemm.ModeFP16TCEC,
		mpsgemm.ModeTF32TCEC,
		mpsgemm.ModeFP16TC,
		mpsgemm.ModeTF32TC,
	}

	h := cublas.Create()
	for _, mode := range modes {
		if err := mpsgemm.SetComputeMode(mode); err != nil {
			log.Fatal(err)
		}
		err := cublas.Sgemm(h, cublas.NoTrans, cublas.NoTrans, dim, dim, dim,
			1, a, dim, b, dim, 0, c, dim)
		if err != nil {
			log.Fatal(err)
		}

		id := mpsgemm.GetCurrentBufferID()
		ratio, err := mpsgemm.GetLostRatio(id)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%-8s kernel=%-16s lost_ratio=%.6f threshold=%.2f\n",
			mode, mpsgemm.LastCalledFunction(), ratio,
			mpsgemm.GetGlobalLostRatioThreshold())
	}
}
