package attack

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"trafficgen/internal/config"
	"trafficgen/internal/rng"
)

type component struct {
	name   string
	weight float64
	fn     func(*synth, *rand.Rand) ([]byte, error)
	r      *rand.Rand
	count  int
}

// volumetricState picks the component furthest behind its share so that
// every prefix of the run follows the mix ratios, whether the packet or the
// byte budget ends it. With a packet budget the shares are the apportioned
// counts, which the run then hits exactly.
type volumetricState struct {
	components []component
	emitted    int
	ties       []int
	r          *rand.Rand
}

func newVolumetricState(cfg config.Attack, seed uint64, label string) (*volumetricState, error) {
	ratios := cfg.MixRatios
	if len(ratios) == 0 {
		ratios = config.DefaultMixRatios()
	}
	names := make([]string, 0, len(ratios))
	var total float64
	for name, w := range ratios {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, config.Errorf("mix_ratios."+name, "must be a non-negative number")
		}
		names = append(names, name)
		total += w
	}
	if total <= 0 {
		return nil, config.Errorf("mix_ratios", "must have a positive total")
	}
	slices.Sort(names)

	weights := make([]float64, len(names))
	for i, name := range names {
		weights[i] = ratios[name] / total
	}
	if cfg.NumPackets > 0 {
		for i, n := range Apportion(cfg.NumPackets, weights) {
			weights[i] = float64(n) / float64(cfg.NumPackets)
		}
	}

	st := &volumetricState{r: rng.Derive(seed, label+".queue", 0)}
	for i, name := range names {
		fn, ok := componentFuncs[name]
		if !ok {
			return nil, config.Errorf("mix_ratios", "unknown component %q (want syn, udp, icmp, ack or http)", name)
		}
		st.components = append(st.components, component{
			name:   name,
			weight: weights[i],
			fn:     fn,
			r:      rng.Derive(seed, label+"."+name, uint64(i)),
		})
	}
	return st, nil
}

var componentFuncs = map[string]func(*synth, *rand.Rand) ([]byte, error){
	"ack":  synthACK,
	"http": synthHTTP,
	"icmp": synthICMP,
	"syn":  synthSYN,
	"udp":  synthUDP,
}

func (v *volumetricState) next(s *synth) ([][]byte, string, error) {
	c := &v.components[v.pick()]
	c.count++
	v.emitted++
	frame, err := c.fn(s, c.r)
	if err != nil {
		return nil, "", fmt.Errorf("%s component: %w", c.name, err)
	}
	return [][]byte{frame}, c.name, nil
}

// pick returns the component with the largest deficit
// (emitted+1)·weight - count. Equal deficits are broken by the queue stream.
func (v *volumetricState) pick() int {
	const eps = 1e-9
	best := math.Inf(-1)
	v.ties = v.ties[:0]
	for i, c := range v.components {
		if c.weight == 0 {
			continue
		}
		d := float64(v.emitted+1)*c.weight - float64(c.count)
		switch {
		case d > best+eps:
			best = d
			v.ties = append(v.ties[:0], i)
		case d >= best-eps:
			v.ties = append(v.ties, i)
		}
	}
	if len(v.ties) == 1 {
		return v.ties[0]
	}
	return rng.Choice(v.r, v.ties)
}

// Apportion splits n into integer counts proportional to weights using the
// largest-remainder method. Counts sum to n and each is within one of
// n·weight/Σweights. Ties in the remainder go to the earlier index.
func Apportion(n int, weights []float64) []int {
	counts := make([]int, len(weights))
	if n <= 0 || len(weights) == 0 {
		return counts
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return counts
	}
	rem := make([]float64, len(weights))
	assigned := 0
	for i, w := range weights {
		exact := float64(n) * w / total
		counts[i] = int(math.Floor(exact))
		rem[i] = exact - float64(counts[i])
		assigned += counts[i]
	}
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(rem[b], rem[a]) })
	for i := 0; assigned < n; i = (i + 1) % len(order) {
		counts[order[i]]++
		assigned++
	}
	return counts
}
