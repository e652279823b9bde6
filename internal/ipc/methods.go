package ipc

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/rmacdonaldsmith/shellwatch/internal/shell"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/subscription"
)

// Method names
const (
	MethodWatch           = "events/watch"
	MethodTopics          = "events/topics"
	MethodListViews       = "shell/list-views"
	MethodViewInfo        = "shell/view-info"
	MethodListOutputs     = "shell/list-outputs"
	MethodOutputInfo      = "shell/output-info"
	MethodViewSetGeometry = "shell/view-set-geometry"
)

// RegisterBrokerMethods exposes the broker's subscribe request and releases
// a client's subscriptions when it disconnects.
func RegisterBrokerMethods(r *Repository, b brokerpkg.Broker) {
	r.Register(MethodWatch, func(client subscription.Subscriber, data []byte) brokerpkg.Response {
		req, err := brokerpkg.ParseWatchRequest(data)
		if err != nil {
			return brokerpkg.Error(brokerpkg.ErrorMessage(err))
		}
		if _, err := b.Watch(client, req); err != nil {
			return brokerpkg.Error(err.Error())
		}
		return brokerpkg.OK()
	})

	r.Register(MethodTopics, func(subscription.Subscriber, []byte) brokerpkg.Response {
		return brokerpkg.OK().With("topics", b.Topics())
	})

	r.OnDisconnect(func(client subscription.Subscriber) {
		b.Disconnect(client.ID())
	})
}

// RegisterShellMethods exposes state queries so subscribers can resolve the
// ids carried by event records.
func RegisterShellMethods(r *Repository, core *shell.Core) {
	r.Register(MethodListViews, func(subscription.Subscriber, []byte) brokerpkg.Response {
		views := make([]map[string]any, 0)
		for _, v := range core.Views() {
			views = append(views, v.Describe())
		}
		return brokerpkg.OK().With("views", views)
	})

	r.Register(MethodViewInfo, func(_ subscription.Subscriber, data []byte) brokerpkg.Response {
		id, err := requireID(data)
		if err != nil {
			return brokerpkg.Error(err.Error())
		}
		v, err := core.View(id)
		if err != nil {
			return brokerpkg.Error(err.Error())
		}
		return brokerpkg.OK().With("info", v.Describe())
	})

	r.Register(MethodListOutputs, func(subscription.Subscriber, []byte) brokerpkg.Response {
		outputs := make([]map[string]any, 0)
		for _, o := range core.Outputs() {
			outputs = append(outputs, o.Describe())
		}
		return brokerpkg.OK().With("outputs", outputs)
	})

	r.Register(MethodOutputInfo, func(_ subscription.Subscriber, data []byte) brokerpkg.Response {
		id, err := requireID(data)
		if err != nil {
			return brokerpkg.Error(err.Error())
		}
		o, err := core.Output(id)
		if err != nil {
			return brokerpkg.Error(err.Error())
		}
		return brokerpkg.OK().With("info", o.Describe())
	})

	r.Register(MethodViewSetGeometry, func(_ subscription.Subscriber, data []byte) brokerpkg.Response {
		id, err := requireID(data)
		if err != nil {
			return brokerpkg.Error(err.Error())
		}
		raw := gjson.GetBytes(data, "geometry")
		g, ok := raw.Value().(map[string]any)
		if !raw.IsObject() || !ok {
			return brokerpkg.Error("Missing \"geometry\"")
		}
		geometry, err := shell.GeometryFromMap(g)
		if err != nil {
			return brokerpkg.Error(fmt.Sprintf("Invalid geometry: %v", err))
		}
		if err := core.SetGeometry(id, geometry); err != nil {
			return brokerpkg.Error(err.Error())
		}
		return brokerpkg.OK()
	})
}

func requireID(data []byte) (int, error) {
	id := gjson.GetBytes(data, "id")
	if !id.Exists() || id.Type != gjson.Number {
		return 0, errors.New("Missing \"id\"")
	}
	if float64(id.Int()) != id.Num {
		return 0, errors.New("\"id\" must be an integer")
	}
	return int(id.Int()), nil
}
