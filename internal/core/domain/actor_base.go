package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef lets a request name the actor that should get the response when
// it is forwarded on behalf of someone else.
type ActorRef actor.PID

func RefTo(pid *actor.PID) *ActorRef {
	return (*ActorRef)(pid)
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// ActorResponseMixIn carries the failure of a request. Actors report
// errors this way and never through the transport.
type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}
