package switchboard_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/pkg/adapters/scripted"
	"github.com/aretw0/switchboard/pkg/domain"
)

// ExampleNew demonstrates a two-turn conversation against a scripted model.
// Real deployments plug in the openai or anthropic adapters instead.
func ExampleNew() {
	model := scripted.New().
		On(domain.RoutingAgent, scripted.Tutor("Mathematics", 6)).
		On(domain.TutorAgent,
			scripted.Respond("What is 3 x 4?", domain.TutorAgent),
			scripted.Respond("Well done! 12 is right.", domain.TutorAgent),
		)

	orc, err := switchboard.New(switchboard.WithModel(model))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for _, msg := range []string{"I am in class 6 and want maths", "12"} {
		reply, err := orc.Turn(ctx, "student-1", msg)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s -> %s\n", reply.Start, reply.Message)
	}

	// Output:
	// routing_agent -> What is 3 x 4?
	// tutor_agent -> Well done! 12 is right.
}
