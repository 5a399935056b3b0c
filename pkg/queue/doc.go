// Package queue drains lookup requests from an SQS queue, runs them as a
// batch and relays every Result to a response queue.
//
// A request message is deleted only after its Result has been relayed.
// Messages whose body is not a JSON object of string fields are logged and
// left on the queue so the redrive policy can move them aside.
package queue
