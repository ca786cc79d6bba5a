// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package generator

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/bits"
	"math/rand"
	"net/netip"
	"time"

	"flowexporter/common/record"
)

// rateToCount converts a per-second rate to the number of items to
// produce for the given time.
func rateToCount(rate float64, now time.Time) int {
	seconds := float64(now.Unix() - now.Truncate(time.Hour*24*30*12).Unix())
	count := math.Trunc((seconds+1)*rate) - math.Trunc(seconds*rate)
	return int(count)
}

// randomIP returns a random IP in the provided prefix.
func randomIP(prefix netip.Prefix, r *rand.Rand) netip.Addr {
	base := prefix.Masked().Addr().AsSlice()
	result := make([]byte, len(base))
	for i := range result {
		if prefix.Bits() >= (i+1)*8 {
			result[i] = base[i]
			continue
		}
		shiftMask := max(prefix.Bits()-i*8, 0)
		randomByte := byte(r.Int31n(256))
		randomByte &^= bits.Reverse8(byte((1 << shiftMask) - 1))
		result[i] = randomByte | base[i]
	}
	addr, _ := netip.AddrFromSlice(result)
	return addr
}

// randomMAC returns a random locally administered unicast MAC address.
func randomMAC(r *rand.Rand) uint64 {
	return (uint64(r.Int63n(1<<48)) &^ 0x010000000000) | 0x020000000000
}

// peakHourDistance returns distance from peak hour (0 to 1)
func peakHourDistance(now, peak time.Duration) float64 {
	delta := math.Mod(math.Abs((now - peak).Hours()), 24)
	if 24-delta < delta {
		delta = 24 - delta
	}
	return (12 - delta) / 12
}

// chooseRandom returns a random value from a slice
func chooseRandom[T any](r *rand.Rand, slice []T) T {
	if len(slice) == 0 {
		var result T
		return result
	}
	if len(slice) == 1 {
		return slice[0]
	}
	return slice[r.Intn(len(slice))]
}

// wellKnownPorts are the destination ports used for each kind when
// no destination port is configured.
var wellKnownPorts = map[record.Kind]uint16{
	record.KindHTTP:  80,
	record.KindSMTP:  25,
	record.KindHTTPS: 443,
	record.KindNTP:   123,
	record.KindSIP:   5060,
}

// generateFlows generate a set of flows using the provided
// configuration, for the provided date. It returns one second worth
// of flows. This is stateless and not very efficient if we have many
// flow configurations. Flow IDs are left to the caller.
func generateFlows(flowConfigs []FlowConfiguration, seed int64, now time.Time) []*record.Flow {
	flows := []*record.Flow{}
	now = now.Truncate(time.Second)

	// Initialize the random number generator to a known state
	hash := fnv.New64()
	fmt.Fprintf(hash, "%d %d", now.Unix(), seed)
	r := rand.New(rand.NewSource(int64(hash.Sum64())))

	nowTime := now.Sub(now.Truncate(time.Hour * 24))
	for _, flowConfig := range flowConfigs {
		// Compute how many per seconds
		distance := peakHourDistance(nowTime, flowConfig.PeakHour)
		square := distance * distance
		multiplier := 1 + (flowConfig.Multiplier-1)*square/(2.*(square-distance)+1.)
		count := rateToCount(flowConfig.PerSecond*multiplier*(0.9+r.Float64()/5), now)
		for ; count > 0; count-- {
			flow := &record.Flow{
				TimeEnd: now,
				SrcAddr: randomIP(flowConfig.SrcNet, r),
				DstAddr: randomIP(flowConfig.DstNet, r),
				TTL:     64,
				SrcMAC:  randomMAC(r),
				DstMAC:  randomMAC(r),
			}
			flow.TimeStart = now
			if flowConfig.Duration > 0 {
				flow.TimeStart = now.Add(-time.Duration(r.Int63n(int64(flowConfig.Duration))))
			}
			if flow.SrcAddr.Is4() {
				flow.IPVersion = 4
			} else {
				flow.IPVersion = 6
			}
			if flowConfig.Size == 0 {
				flow.Bytes = uint64(r.Int31n(1200) + 300)
			} else {
				size := float64(flowConfig.Size) * (r.NormFloat64()*0.3 + 1)
				flow.Bytes = uint64(max(size, 64))
			}
			flow.Packets = flow.Bytes/1500 + 1

			kind := chooseRandom(r, flowConfig.Kinds)
			proto := chooseRandom(r, flowConfig.Protocol)
			switch proto {
			case "tcp", "udp":
				if proto == "tcp" {
					flow.Protocol = 6
					flow.TCPFlags = chooseRandom(r, []uint8{0x02, 0x12, 0x18, 0x11, 0x1b})
				} else {
					flow.Protocol = 17
				}
				if srcPort := chooseRandom(r, flowConfig.SrcPort); srcPort != 0 {
					flow.SrcPort = srcPort
				} else {
					flow.SrcPort = uint16(r.Int31n(2000) + 33000)
				}
				if dstPort := chooseRandom(r, flowConfig.DstPort); dstPort != 0 {
					flow.DstPort = dstPort
				} else if port, ok := wellKnownPorts[kind]; ok {
					flow.DstPort = port
				} else {
					flow.DstPort = uint16(r.Int31n(2000) + 33000)
				}
			case "icmp":
				if flow.IPVersion == 4 {
					flow.Protocol = 1
				} else {
					flow.Protocol = 58
				}
			}
			if ext := randomExtension(kind, r, now); ext != nil {
				flow.Extensions = []record.Extension{ext}
			}
			flows = append(flows, flow)

			if flowConfig.ReverseDirectionRatio > 0 {
				reverseFlow := *flow
				reverseFlow.Bytes = uint64(float32(reverseFlow.Bytes) * flowConfig.ReverseDirectionRatio)
				reverseFlow.Packets = reverseFlow.Bytes/1500 + 1
				reverseFlow.SrcAddr, reverseFlow.DstAddr = reverseFlow.DstAddr, reverseFlow.SrcAddr
				reverseFlow.SrcPort, reverseFlow.DstPort = reverseFlow.DstPort, reverseFlow.SrcPort
				reverseFlow.SrcMAC, reverseFlow.DstMAC = reverseFlow.DstMAC, reverseFlow.SrcMAC
				reverseFlow.Extensions = nil
				flows = append(flows, &reverseFlow)
			}
		}
	}
	return flows
}
