package kernel

// ============================================================================
// Thread registry
// ============================================================================

// unregisterI drops tp from the registry. Called on reclaim (Join).
func (k *Kernel) unregisterI(tp *Thread) {
	k.assertLockedI()
	for i, cur := range k.registry {
		if cur == tp {
			k.registry = append(k.registry[:i], k.registry[i+1:]...)
			return
		}
	}
	k.fault("thread %q not in the registry", tp.name)
}

// Threads snapshots the registry: every created thread not yet reclaimed,
// in creation order.
func (k *Kernel) Threads(self *Thread) []*Thread {
	k.Lock(self)
	out := make([]*Thread, len(k.registry))
	copy(out, k.registry)
	k.Unlock()
	return out
}

// FindThread returns the registered thread with the given name, or nil.
func (k *Kernel) FindThread(self *Thread, name string) *Thread {
	k.Lock(self)
	defer k.Unlock()
	for _, tp := range k.registry {
		if tp.name == name {
			return tp
		}
	}
	return nil
}
