package engine

import "strings"

// topic is one answerable subject: the keywords that select it and the
// canned answer returned when it wins.
type topic struct {
	name     string
	keywords []string
	response string
}

// knowledgeBase is scanned in order; the first topic with the highest
// keyword hit count answers the query.
type knowledgeBase []topic

func buildKnowledgeBase() knowledgeBase {
	return knowledgeBase{
		{
			name:     "cancel",
			keywords: []string{"cancel", "refund", "return", "cancellation"},
			response: `To cancel a booking:
1. Go to 'View My Bookings' option
2. Note your booking ID
3. Select 'Cancel Booking' from main menu
4. Enter your booking ID
Refunds are processed within 5-7 business days. Cancellations must be made at least 2 hours before the show time.`,
		},
		{
			name:     "book",
			keywords: []string{"book", "reserve", "buy ticket", "purchase", "how to book"},
			response: `To book tickets:
1. Select 'View Movies' to see available shows
2. Select 'Book Tickets' from main menu
3. Enter the movie ID
4. Choose your preferred seat numbers (comma-separated)
5. Confirm your booking
6. You'll receive a booking ID for reference
Seats are held for 10 minutes during the booking process.`,
		},
		{
			name:     "payment",
			keywords: []string{"payment", "pay", "card", "method", "how to pay"},
			response: `We accept multiple payment methods:
- Credit/Debit cards (Visa, Mastercard, AmEx)
- UPI (Google Pay, PhonePe, Paytm)
- Digital wallets
All payments are processed securely through our gateway. You'll receive a confirmation email after successful payment.`,
		},
		{
			name:     "seats",
			keywords: []string{"seat", "available", "choose", "select seat"},
			response: `Seat Selection Guide:
- Use 'Get Available Seats' to see which seats are free
- Seats are numbered from 1 to total capacity
- You can book multiple seats at once
- Enter seat numbers separated by commas (e.g., 1,2,3)
- Once booked, seats are immediately reserved for you`,
		},
		{
			name:     "price",
			keywords: []string{"price", "cost", "how much", "ticket price"},
			response: `Ticket Pricing:
- Prices vary by movie and show time
- Premium shows and weekend slots may have higher prices
- Check the movie details for exact pricing
- Total price is calculated based on number of seats
- Prices shown are per ticket`,
		},
		{
			name:     "shows",
			keywords: []string{"show time", "timing", "schedule", "when"},
			response: `Show Times:
- View all available movies and their show times in 'View Movies'
- We have multiple shows throughout the day
- Shows are listed with date and time
- Select a convenient time slot when booking
- Arrive at least 15 minutes before show time`,
		},
		{
			name:     "movies",
			keywords: []string{"movie", "film", "what's playing", "available movies"},
			response: `To see available movies:
- Select option 1 'View Movies' from main menu
- You'll see all currently showing movies
- Information includes: title, show time, price, available seats
- Note the movie ID to book tickets`,
		},
		{
			name:     "booking_id",
			keywords: []string{"booking id", "booking number", "reference", "confirmation"},
			response: `About Booking IDs:
- Each booking gets a unique ID (format: BK000001)
- You receive this ID immediately after successful booking
- Keep this ID safe - you'll need it for:
  * Cancellations
  * Support queries
  * Entry at the theater
- You can view all your booking IDs in 'View My Bookings'`,
		},
		{
			name:     "help",
			keywords: []string{"help", "support", "contact", "assistance", "how"},
			response: `I'm here to help! I can assist with:
- Booking tickets
- Cancellations and refunds
- Payment methods
- Seat selection
- Show timings
- Any other queries about our movie ticket booking system
Just ask your question and I'll do my best to help!`,
		},
		{
			name:     "login",
			keywords: []string{"login", "sign in", "account", "password"},
			response: `Login Information:
- You need to login to book tickets
- Use your username and password
- Your session remains active for 24 hours
- You can logout anytime from the main menu
- Contact support if you forgot your password`,
		},
		{
			name:     "problem",
			keywords: []string{"problem", "error", "issue", "not working", "bug"},
			response: `If you're experiencing issues:
1. Try logging out and logging back in
2. Check your internet connection
3. Make sure you're using valid movie IDs and seat numbers
4. Verify seats are still available
5. Contact support if the problem persists
Please provide your booking ID when contacting support.`,
		},
	}
}

// fallbackAnswer is returned when no topic keyword matches the query.
const fallbackAnswer = `Thank you for your question! For assistance with:
- Booking tickets: Select 'Book Tickets' from main menu
- Cancellations: Use 'Cancel Booking' with your booking ID
- Viewing movies: Select 'View Movies'
- Your bookings: Select 'View My Bookings'

For specific help, try asking questions like:
- 'How do I book tickets?'
- 'How do I cancel my booking?'
- 'What payment methods do you accept?'`

// answer scores every topic by counting its keywords that appear in the
// lowercased query. Strictly more hits wins, so on a tie the earlier
// topic keeps the answer. Zero hits returns ok=false.
func (kb knowledgeBase) answer(query string) (name, response string, ok bool) {
	q := strings.ToLower(query)
	best := 0
	for _, t := range kb {
		hits := 0
		for _, kw := range t.keywords {
			if strings.Contains(q, kw) {
				hits++
			}
		}
		if hits > best {
			best = hits
			name = t.name
			response = t.response
		}
	}
	return name, response, best > 0
}
