/*
Package playout is the streaming core of a networked audio player.

Concept

Audio travels from a source to a sink through a chain of elements. Every
element implements Element: it pulls a message from its upstream neighbour,
handles it and returns a message downstream. The chain is driven from the
sink end:

    Filler -> Reservoir(encoded) -> CodecController -> Reservoir(decoded)
    -> Seeker -> VariableDelay -> TrackInspector -> Skipper -> Waiter
    -> Stopper -> Ramper -> Gorger -> Reporter -> Splitter
    -> VariableDelay -> StarvationMonitor -> Pruner -> PreDriver -> driver

The encoded reservoir is the only push boundary: the Filler goroutine pushes
data produced by a Protocol into it and blocks once it is full.

Messages

Messages are pointer types behind the Msg interface. Elements use a type
switch and pass through everything they do not handle. All messages come
from fixed pools owned by MsgFactory and are reference counted, nothing is
allocated per message while the pipeline runs.

Time is measured in jiffies, a unit that divides evenly into samples for all
supported sample rates. Buffer sizes, ramp durations and delays are all
configured in jiffies.

Ramps

Every transition is ramped: pause, stop, skip, seek, delay changes and
starvation. A ramp is a position between RampMin and RampMax that moves
linearly over audio jiffies, gain is looked up from a perceptual curve. A
ramp that is reversed half way continues from where it was.

Threads

The Filler, CodecController, Gorger and StarvationMonitor each run in a
goroutine locked to an OS thread. Thread priorities increase toward the
sink, so downstream elements preempt upstream ones. Other elements run in
the goroutine of their caller.

Control

Manager builds the chain and exposes Play, Pause, Stop, Seek, Next, Prev and
RemoveAll. Results are asynchronous and reported to observers as
PipelineState changes.
*/
package playout
