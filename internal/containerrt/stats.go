package containerrt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
)

// snapshotFromStatsJSON converts the daemon's raw stats document into the
// adapter's normalized StatsSnapshot, computing CPU percent the same way
// `docker stats` does: the delta of container CPU usage over the delta of
// system CPU usage, scaled by the number of online CPUs.
func snapshotFromStatsJSON(raw types.StatsJSON) StatsSnapshot {
	var rxBytes, txBytes uint64
	for _, iface := range raw.Networks {
		rxBytes += iface.RxBytes
		txBytes += iface.TxBytes
	}

	var readBytes, writeBytes uint64
	for _, entry := range raw.BlkioStats.IoServiceBytesRecursive {
		switch entry.Op {
		case "Read", "read":
			readBytes += entry.Value
		case "Write", "write":
			writeBytes += entry.Value
		}
	}

	return StatsSnapshot{
		CPUPercent:   cpuPercent(raw),
		MemoryUsageB: raw.MemoryStats.Usage,
		MemoryLimitB: raw.MemoryStats.Limit,
		NetworkRxB:   rxBytes,
		NetworkTxB:   txBytes,
		BlockReadB:   readBytes,
		BlockWriteB:  writeBytes,
		SampledAt:    raw.Read,
	}
}

func cpuPercent(raw types.StatsJSON) float64 {
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)
	if systemDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	onlineCPUs := float64(raw.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}
	return (cpuDelta / systemDelta) * onlineCPUs * 100.0
}

// buildMessage mirrors the subset of the daemon's JSON build-progress
// stream this adapter cares about: the human-readable stream line, and
// the aux payload carrying the final image ID once the build completes.
type buildMessage struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
	Aux    *struct {
		ID string `json:"ID"`
	} `json:"aux"`
}

// drainBuildResponse copies the daemon's streamed build output to out and
// extracts the resulting image ID, returning an error if the stream itself
// reports one (a build-script failure surfaces through this path).
func drainBuildResponse(body io.Reader, out io.Writer) (string, error) {
	var imageID string
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var msg buildMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			if out != nil {
				out.Write(line)
				out.Write([]byte("\n"))
			}
			continue
		}
		if msg.Stream != "" && out != nil {
			io.WriteString(out, msg.Stream)
		}
		if msg.Aux != nil && msg.Aux.ID != "" {
			imageID = msg.Aux.ID
		}
		if msg.Error != "" {
			return "", fmt.Errorf("build failed: %s", msg.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return imageID, fmt.Errorf("reading build response: %w", err)
	}
	return imageID, nil
}
