package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"statemesh/internal/logging"
)

// allNamespaces is the configuration sentinel that scopes the pod watch to
// the whole cluster instead of a single namespace.
const allNamespaces = ":all"

// reconnectDelay is how long the watcher waits before re-opening a watch
// stream that ended (err or natural close). The source does not resume
// from the last observed resourceVersion (see DESIGN.md); a fixed-delay
// restart at least keeps membership from going permanently stale.
const reconnectDelay = 2 * time.Second

// KubernetesProvider maintains a live peer set learned from a Kubernetes
// pod watch, filtered by label selector and namespace scope.
type KubernetesProvider struct {
	Selector  map[string]string `yaml:"selector" json:"selector"`
	Namespace string            `yaml:"namespace" json:"namespace"`

	mu    sync.RWMutex
	peers map[string]Peer // pod UID -> Peer

	newClientset func() (kubernetes.Interface, error) // overridable for tests
}

var _ PeerProvider = (*KubernetesProvider)(nil)

func (k *KubernetesProvider) log() *entryLogger { return newEntryLogger("k8s-peer-provider") }

// labelSelector joins the configured selector map as "k1=v1,k2=v2". An
// empty map means "all pods".
func (k *KubernetesProvider) labelSelector() string {
	parts := make([]string, 0, len(k.Selector))
	for key, val := range k.Selector {
		parts = append(parts, fmt.Sprintf("%s=%s", key, val))
	}
	return strings.Join(parts, ",")
}

func (k *KubernetesProvider) namespace() string {
	if k.Namespace == "" {
		return "default"
	}
	return k.Namespace
}

// Init spawns the background watch loop and returns immediately; the first
// clientset construction error is returned synchronously so misconfiguration
// fails fast at startup.
func (k *KubernetesProvider) Init(ctx context.Context) error {
	k.mu.Lock()
	if k.peers == nil {
		k.peers = make(map[string]Peer)
	}
	k.mu.Unlock()

	buildClientset := k.newClientset
	if buildClientset == nil {
		buildClientset = defaultClientset
	}

	clientset, err := buildClientset()
	if err != nil {
		return fmt.Errorf("k8s peer provider: build clientset: %w", err)
	}

	go k.watchLoop(ctx, clientset)
	return nil
}

// Get returns the current peer set as a fresh slice.
func (k *KubernetesProvider) Get() []Peer {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Peer, 0, len(k.peers))
	for _, p := range k.peers {
		out = append(out, p)
	}
	return out
}

func (k *KubernetesProvider) watchLoop(ctx context.Context, clientset kubernetes.Interface) {
	log := k.log()
	ns := k.namespace()
	selector := k.labelSelector()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := k.watchOnce(ctx, clientset, ns, selector); err != nil {
			log.errorf("watch stream terminated: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (k *KubernetesProvider) watchOnce(ctx context.Context, clientset kubernetes.Interface, ns, selector string) error {
	pods := clientset.CoreV1().Pods(ns)
	if ns == allNamespaces {
		pods = clientset.CoreV1().Pods(metav1.NamespaceAll)
	}

	w, err := pods.Watch(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return fmt.Errorf("open pod watch: %w", err)
	}
	defer w.Stop()

	log := k.log()
	for event := range w.ResultChan() {
		pod, ok := event.Object.(*corev1.Pod)
		if !ok {
			log.warnf("unexpected watch object type %T", event.Object)
			continue
		}

		switch event.Type {
		case watch.Added, watch.Modified:
			k.upsert(pod)
		case watch.Deleted:
			k.remove(pod)
		case watch.Bookmark:
			// no membership change
		case watch.Error:
			log.warnf("watch error event for pod %s/%s", pod.Namespace, pod.Name)
		default:
			log.warnf("unhandled watch event type %q", event.Type)
		}
	}
	return fmt.Errorf("watch channel closed")
}

func (k *KubernetesProvider) upsert(pod *corev1.Pod) {
	if pod.Status.PodIP == "" {
		return
	}
	peer, err := ParsePeer(pod.Status.PodIP)
	if err != nil {
		return
	}
	k.mu.Lock()
	k.peers[string(pod.UID)] = peer
	k.mu.Unlock()
}

func (k *KubernetesProvider) remove(pod *corev1.Pod) {
	k.mu.Lock()
	delete(k.peers, string(pod.UID))
	k.mu.Unlock()
}

// defaultClientset builds a Kubernetes clientset from in-cluster
// configuration, falling back to the local kubeconfig for development —
// the same fallback idiom used throughout the Kubernetes-tooling examples
// in the retrieval pack.
func defaultClientset() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		overrides := &clientcmd.ConfigOverrides{}
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("no in-cluster config and no usable kubeconfig: %w", err)
		}
	}
	return kubernetes.NewForConfig(cfg)
}

// entryLogger is a tiny indirection so this file doesn't have to import
// logrus directly; it just forwards to the shared component logger.
type entryLogger struct {
	component string
}

func newEntryLogger(component string) *entryLogger { return &entryLogger{component: component} }

func (e *entryLogger) errorf(format string, args ...interface{}) {
	logging.For(e.component).Errorf(format, args...)
}

func (e *entryLogger) warnf(format string, args ...interface{}) {
	logging.For(e.component).Warnf(format, args...)
}
