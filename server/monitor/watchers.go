package monitor

import "slices"

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// Register to receive the result of every processed frame.
// The channel is never closed by the monitor. Call RemoveWatcher when you're done.
func (m *Monitor) AddWatcher() chan *FrameResult {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *FrameResult, WatcherChannelSize)
	m.watchers = append(m.watchers, ch)
	return ch
}

// Unregister a channel that was returned by AddWatcher
func (m *Monitor) RemoveWatcher(ch chan *FrameResult) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, w := range m.watchers {
		if w == ch {
			m.watchers = slices.Delete(m.watchers, i, i+1)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveWatcher failed to find channel")
}

func (m *Monitor) sendToWatchers(result *FrameResult) {
	m.watchersLock.RLock()
	defer m.watchersLock.RUnlock()
	// We never stall the frame loop on a slow watcher. If one of them falls behind,
	// it loses frames, and the others carry on.
	for _, ch := range m.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch)*9/10 {
			m.Log.Warnf("Monitor watcher is falling behind. Dropping frame %v", result.Index)
		} else {
			ch <- result
		}
	}
}
